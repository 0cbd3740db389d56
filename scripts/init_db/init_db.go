package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "axle_user"),
		dbGetEnv("DB_PASSWORD", "axle_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "axle_monitor"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	stepFrames(ctx, conn)
	stepDevices(ctx, conn)
	stepMaintenance(ctx, conn)
	stepIndexes(ctx, conn)
	stepVerify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_redis")
}

func stepFrames(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── iot_frames ──────────────────────────────────")

	// payload is the frame exactly as the device sent it; received_at is
	// server time and the only clock used for range queries.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS iot_frames (
			id           BIGSERIAL    PRIMARY KEY,
			device_key   TEXT         NOT NULL,
			train_id     TEXT         NOT NULL DEFAULT '',
			payload      JSONB        NOT NULL,
			received_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
	`, "iot_frames table created")
}

func stepDevices(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── devices ─────────────────────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS devices (
			id                      TEXT              PRIMARY KEY,
			name                    TEXT              NOT NULL UNIQUE,
			sensor_number           TEXT              NOT NULL DEFAULT '',
			hot_threshold           DOUBLE PRECISION  NOT NULL,
			warm_threshold          DOUBLE PRECISION  NOT NULL,
			differential_threshold  DOUBLE PRECISION  NOT NULL,
			active                  BOOLEAN           NOT NULL DEFAULT TRUE,
			deploy_date             TIMESTAMPTZ       NOT NULL DEFAULT NOW(),
			maintenance_windows     INTEGER           NOT NULL DEFAULT 12,
			location                TEXT              NOT NULL DEFAULT '',
			division                TEXT              NOT NULL DEFAULT '',
			zone                    TEXT              NOT NULL DEFAULT '',
			notified_users          JSONB             NOT NULL DEFAULT '[]',

			CONSTRAINT chk_threshold_order CHECK (
				differential_threshold <= warm_threshold AND warm_threshold <= hot_threshold
			)
		);
	`, "devices table created")
}

func stepMaintenance(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── maintenance_records ─────────────────────────")

	// The unique (device_id, maintain_date) pair is what makes repeated
	// scheduler ticks idempotent.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS maintenance_records (
			id                TEXT         PRIMARY KEY,
			device_id         TEXT         NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			status            TEXT         NOT NULL,
			maintain_date     TIMESTAMPTZ  NOT NULL,
			engineer_name     TEXT,
			engineer_email    TEXT,
			contact_number    TEXT,
			is_contact_added  BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),

			CONSTRAINT uq_device_maintain_date UNIQUE (device_id, maintain_date),
			CONSTRAINT chk_status CHECK (
				status IN ('Upcoming Maintenance', 'Maintenance Done', 'Maintenance Not Done')
			)
		);
	`, "maintenance_records table created")
}

func stepIndexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Indexes ─────────────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_frames_device_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_frames_device_time
				  ON iot_frames (device_key, received_at, id);`,
			why: "query: frames of one device in a range",
		},
		{
			name: "idx_frames_train",
			sql: `CREATE INDEX IF NOT EXISTS idx_frames_train
				  ON iot_frames (train_id, received_at, id);`,
			why: "query: frames of one train",
		},
		{
			name: "idx_frames_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_frames_time
				  ON iot_frames (received_at, id);`,
			why: "query: all devices in a range",
		},
		{
			name: "idx_maintenance_status_date",
			sql: `CREATE INDEX IF NOT EXISTS idx_maintenance_status_date
				  ON maintenance_records (status, maintain_date);`,
			why: "scheduler: escalation and overview",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-32s ← %s", idx.name, idx.why),
		)
	}
}

func stepVerify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Verification ────────────────────────────────")

	for _, table := range []string{"iot_frames", "devices", "maintenance_records"} {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var unique bool
	err := conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.table_constraints
			WHERE table_name = 'maintenance_records'
			AND constraint_name = 'uq_device_maintain_date'
		)
	`).Scan(&unique)
	if err != nil || !unique {
		log.Fatalf("maintenance uniqueness constraint missing: %v", err)
	}
	fmt.Println("  ✓ constraint: uq_device_maintain_date")
}

func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
