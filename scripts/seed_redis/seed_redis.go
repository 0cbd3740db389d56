package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"axle-monitor/core/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisGetEnv("REDIS_ADDR", "localhost:6379"),
		Password: redisGetEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	rs := store.NewRedisStoreFromClient(client, 0)
	defer rs.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := rs.Ping(ctx); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	keys := seedAPIKeys(ctx, rs)
	verify(ctx, rs, keys)

	fmt.Println("\n✅ Redis seeded successfully")
}

// Device API keys map to the device key frames are tagged with. They never
// expire.
var apiKeys = map[string]string{
	"itarsi_up_key":   "ITARSI-UP-01",
	"itarsi_dn_key":   "ITARSI-DN-01",
	"nagpur_main_key": "NAGPUR-01",
	"test_key":        "TEST-DEVICE",
}

func seedAPIKeys(ctx context.Context, rs *store.RedisStore) []string {
	fmt.Println("\n── Seeding device API keys ─────────────────────")

	keys := make([]string, 0, len(apiKeys))
	for k := range apiKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := rs.SetAPIKey(ctx, k, apiKeys[k]); err != nil {
			log.Fatalf("Failed to set key %s: %v", k, err)
		}
		fmt.Printf("  ✓ %-20s → %s\n", k, apiKeys[k])
	}
	return keys
}

func verify(ctx context.Context, rs *store.RedisStore, keys []string) {
	fmt.Println("\n── Verification ────────────────────────────────")

	for _, k := range keys {
		got, err := rs.GetAPIKey(ctx, k)
		if err != nil || got != apiKeys[k] {
			log.Fatalf("Spot check %s failed: got %q, %v", k, got, err)
		}
	}
	fmt.Printf("  ✓ %d API keys resolve\n", len(keys))
}

func redisGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
