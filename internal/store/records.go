package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
)

// RecordStore holds the device registry and maintenance records.
type RecordStore struct {
	db      *sql.DB
	timeout time.Duration
	logger  *zap.Logger
}

func NewRecordStore(db *sql.DB, timeout time.Duration, logger *zap.Logger) *RecordStore {
	return &RecordStore{db: db, timeout: timeout, logger: logger}
}

const deviceColumns = `id, name, sensor_number, hot_threshold, warm_threshold, differential_threshold,
	active, deploy_date, maintenance_windows, location, division, zone, notified_users`

func (s *RecordStore) DeviceByKey(ctx context.Context, key string) (*domain.Device, error) {
	return s.device(ctx, "device by key", "name = $1", key)
}

func (s *RecordStore) DeviceByID(ctx context.Context, id string) (*domain.Device, error) {
	return s.device(ctx, "device by id", "id = $1", id)
}

// Devices lists every registered device, deactivated ones included.
func (s *RecordStore) Devices(ctx context.Context) ([]domain.Device, error) {
	const op = "devices"
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY name")
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows, s.logger)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, *d)
	}
	return out, classify(op, rows.Err())
}

func (s *RecordStore) device(ctx context.Context, op, where string, arg interface{}) (*domain.Device, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE "+where, arg)
	d, err := scanDevice(row, s.logger)
	if err != nil {
		return nil, classify(op, err)
	}
	return d, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDevice reads one device. Undecodable notified users are logged and
// dropped so the device stays usable for classification.
func scanDevice(row scanner, logger *zap.Logger) (*domain.Device, error) {
	var (
		d     domain.Device
		users []byte
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.SensorNumber,
		&d.Thresholds.Hot, &d.Thresholds.Warm, &d.Thresholds.Differential,
		&d.Active, &d.DeployDate, &d.MaintenanceWindows,
		&d.Location, &d.Division, &d.Zone, &users,
	)
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		if err := json.Unmarshal(users, &d.NotifiedUsers); err != nil {
			logger.Warn("undecodable notified users",
				zap.String("device_id", d.ID), zap.Error(err))
			d.NotifiedUsers = nil
		}
	}
	return &d, nil
}

const maintenanceColumns = `id, device_id, status, maintain_date, engineer_name, engineer_email,
	contact_number, is_contact_added, created_at, updated_at`

// EscalateOverdue moves every upcoming record of the device dated strictly
// before cutoff to not done.
func (s *RecordStore) EscalateOverdue(ctx context.Context, deviceID string, cutoff time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_records
		SET status = $1, updated_at = NOW()
		WHERE device_id = $2 AND status = $3 AND maintain_date < $4`,
		string(domain.StatusNotDone), deviceID, string(domain.StatusUpcoming), cutoff,
	)
	if err != nil {
		return 0, classify("escalate overdue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("escalate overdue", err)
	}
	return int(n), nil
}

// HasUpcomingFrom reports whether the device has an upcoming window on or
// after from.
func (s *RecordStore) HasUpcomingFrom(ctx context.Context, deviceID string, from time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM maintenance_records
			WHERE device_id = $1 AND status = $2 AND maintain_date >= $3
		)`,
		deviceID, string(domain.StatusUpcoming), from,
	).Scan(&ok)
	if err != nil {
		return false, classify("has upcoming", err)
	}
	return ok, nil
}

// LatestUpcomingBefore returns the date of the most recent upcoming window
// dated before t.
func (s *RecordStore) LatestUpcomingBefore(ctx context.Context, deviceID string, t time.Time) (time.Time, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(maintain_date) FROM maintenance_records
		WHERE device_id = $1 AND status = $2 AND maintain_date < $3`,
		deviceID, string(domain.StatusUpcoming), t,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, false, classify("latest upcoming", err)
	}
	return latest.Time, latest.Valid, nil
}

const insertMaintenance = `
	INSERT INTO maintenance_records
		(id, device_id, status, maintain_date, is_contact_added, created_at, updated_at)
	VALUES
		($1, $2, $3, $4, FALSE, NOW(), NOW())
	ON CONFLICT (device_id, maintain_date) DO NOTHING`

// InsertMaintenance creates the record unless the device already has one at
// the same date. It reports whether a row was written.
func (s *RecordStore) InsertMaintenance(ctx context.Context, rec domain.MaintenanceRecord) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, insertMaintenance,
		rec.ID, rec.DeviceID, string(rec.Status), rec.MaintainDate)
	if err != nil {
		return false, classify("insert maintenance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("insert maintenance", err)
	}
	return n > 0, nil
}

// InsertMaintenanceBatch writes records in one transaction, skipping dates
// that already exist. It returns the number of rows written.
func (s *RecordStore) InsertMaintenanceBatch(ctx context.Context, recs []domain.MaintenanceRecord) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin maintenance batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertMaintenance)
	if err != nil {
		return 0, classify("prepare maintenance batch", err)
	}
	defer stmt.Close()

	written := 0
	for _, rec := range recs {
		res, err := stmt.ExecContext(ctx, rec.ID, rec.DeviceID, string(rec.Status), rec.MaintainDate)
		if err != nil {
			return 0, classify("insert maintenance batch", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("commit maintenance batch", err)
	}
	return written, nil
}

func (s *RecordStore) GetMaintenance(ctx context.Context, id string) (*domain.MaintenanceRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+maintenanceColumns+" FROM maintenance_records WHERE id = $1", id)
	rec, err := scanMaintenance(row, false)
	if err != nil {
		return nil, classify("get maintenance", err)
	}
	return rec, nil
}

// TransitionStatus moves a record from one status to another only if it is
// still in the expected status. It reports whether the row changed.
func (s *RecordStore) TransitionStatus(ctx context.Context, id string, from, to domain.MaintenanceStatus) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_records
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, classify("transition maintenance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("transition maintenance", err)
	}
	return n > 0, nil
}

func (s *RecordStore) SetEngineer(ctx context.Context, id, name, email, phone string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_records
		SET engineer_name = $1, engineer_email = $2, contact_number = $3,
			is_contact_added = TRUE, updated_at = NOW()
		WHERE id = $4`,
		name, email, phone, id,
	)
	if err != nil {
		return classify("set engineer", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set engineer: maintenance %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListMaintenance returns a device's records, newest first.
func (s *RecordStore) ListMaintenance(ctx context.Context, f domain.MaintenanceFilter) ([]domain.MaintenanceRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	clauses := []string{"device_id = $1"}
	args := []interface{}{f.DeviceID}
	if !f.From.IsZero() {
		args = append(args, f.From)
		clauses = append(clauses, fmt.Sprintf("maintain_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		clauses = append(clauses, fmt.Sprintf("maintain_date <= $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + maintenanceColumns + " FROM maintenance_records WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY maintain_date DESC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list maintenance", err)
	}
	defer rows.Close()

	var out []domain.MaintenanceRecord
	for rows.Next() {
		rec, err := scanMaintenance(rows, false)
		if err != nil {
			return nil, classify("list maintenance", err)
		}
		out = append(out, *rec)
	}
	return out, classify("list maintenance", rows.Err())
}

const overviewLimit = 5

// MaintenanceOverview returns the dashboard lists: the earliest upcoming
// windows, the latest completed ones, and the earliest windows already past
// their date and not done.
func (s *RecordStore) MaintenanceOverview(ctx context.Context, now time.Time) (domain.MaintenanceOverview, error) {
	var (
		out domain.MaintenanceOverview
		err error
	)
	out.Upcoming, err = s.overviewList(ctx, "m.status = $1 AND m.maintain_date >= $2", "m.maintain_date ASC",
		string(domain.StatusUpcoming), now)
	if err != nil {
		return out, err
	}
	out.Done, err = s.overviewList(ctx, "m.status = $1", "m.maintain_date DESC",
		string(domain.StatusDone))
	if err != nil {
		return out, err
	}
	out.Due, err = s.overviewList(ctx, "m.status <> $1 AND m.maintain_date < $2", "m.maintain_date ASC",
		string(domain.StatusDone), now)
	return out, err
}

func (s *RecordStore) overviewList(ctx context.Context, where, order string, args ...interface{}) ([]domain.MaintenanceRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT m.id, m.device_id, m.status, m.maintain_date, m.engineer_name, m.engineer_email,
			m.contact_number, m.is_contact_added, m.created_at, m.updated_at, d.name, d.location
		FROM maintenance_records m
		JOIN devices d ON d.id = m.device_id
		WHERE %s
		ORDER BY %s
		LIMIT %d`, where, order, overviewLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("maintenance overview", err)
	}
	defer rows.Close()

	out := []domain.MaintenanceRecord{}
	for rows.Next() {
		rec, err := scanMaintenance(rows, true)
		if err != nil {
			return nil, classify("maintenance overview", err)
		}
		out = append(out, *rec)
	}
	return out, classify("maintenance overview", rows.Err())
}

// scanMaintenance reads one record, plus the joined device name and
// location columns when withDevice is set.
func scanMaintenance(row scanner, withDevice bool) (*domain.MaintenanceRecord, error) {
	var (
		rec                 domain.MaintenanceRecord
		status              string
		name, email, number sql.NullString
	)
	dest := []interface{}{
		&rec.ID, &rec.DeviceID, &status, &rec.MaintainDate,
		&name, &email, &number, &rec.IsContactAdded, &rec.CreatedAt, &rec.UpdatedAt,
	}
	if withDevice {
		dest = append(dest, &rec.DeviceName, &rec.LocationName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec.Status = domain.MaintenanceStatus(status)
	rec.EngineerName = nullable(name)
	rec.EngineerEmail = nullable(email)
	rec.ContactNumber = nullable(number)
	return &rec, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
