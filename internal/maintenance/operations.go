package maintenance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Engineer is the contact assigned to a maintenance window.
type Engineer struct {
	Name          string `json:"engineerName"`
	Email         string `json:"engineerEmail"`
	ContactNumber string `json:"contactNumber"`
}

func (e Engineer) validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: engineer name is required", domain.ErrInvalidInput)
	}
	if !emailPattern.MatchString(e.Email) {
		return fmt.Errorf("%w: invalid engineer email %q", domain.ErrInvalidInput, e.Email)
	}
	return nil
}

// Operations are the operator-driven actions on maintenance records.
type Operations struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	newID  func() string
}

func NewOperations(store Store, cfg Config, logger *zap.Logger) *Operations {
	return &Operations{store: store, cfg: cfg.withDefaults(), logger: logger, newID: uuid.NewString}
}

// SeedDeployment creates the device's deployment windows: the first at
// deploy date plus the first offset, the rest one interval apart. Dates
// that already exist are skipped. It returns how many were written.
func (o *Operations) SeedDeployment(ctx context.Context, deviceID string) (int, error) {
	device, err := o.store.DeviceByID(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	if device.DeployDate.IsZero() {
		return 0, fmt.Errorf("%w: device %s has no deploy date", domain.ErrInvalidInput, deviceID)
	}

	n := device.MaintenanceWindows
	if n <= 0 {
		n = o.cfg.DeploymentWindows
	}

	first := device.DeployDate.Add(o.cfg.FirstOffset)
	recs := make([]domain.MaintenanceRecord, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, domain.MaintenanceRecord{
			ID:           o.newID(),
			DeviceID:     device.ID,
			Status:       domain.StatusUpcoming,
			MaintainDate: first.AddDate(0, i*o.cfg.IntervalMonths, 0),
		})
	}

	written, err := o.store.InsertMaintenanceBatch(ctx, recs)
	if err != nil {
		return 0, err
	}
	o.logger.Info("deployment windows seeded",
		zap.String("device_id", device.ID),
		zap.Int("requested", n),
		zap.Int("written", written))
	return written, nil
}

// MarkDone closes an upcoming window. Done and not-done records are
// terminal.
func (o *Operations) MarkDone(ctx context.Context, id string) (*domain.MaintenanceRecord, error) {
	rec, err := o.store.GetMaintenance(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanTransition(domain.StatusDone) {
		return nil, fmt.Errorf("%w: %s is %q", domain.ErrInvalidStatus, id, rec.Status)
	}

	ok, err := o.store.TransitionStatus(ctx, id, domain.StatusUpcoming, domain.StatusDone)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s changed concurrently", domain.ErrInvalidStatus, id)
	}
	return o.store.GetMaintenance(ctx, id)
}

func (o *Operations) AssignEngineer(ctx context.Context, id string, e Engineer) (*domain.MaintenanceRecord, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if err := o.store.SetEngineer(ctx, id, e.Name, e.Email, e.ContactNumber); err != nil {
		return nil, err
	}
	return o.store.GetMaintenance(ctx, id)
}

// Overview lists the earliest upcoming, latest done and earliest past-due
// windows across all devices.
func (o *Operations) Overview(ctx context.Context, now time.Time) (domain.MaintenanceOverview, error) {
	ov, err := o.store.MaintenanceOverview(ctx, now)
	if err != nil {
		return ov, err
	}
	ov.Upcoming = nonNil(ov.Upcoming)
	ov.Done = nonNil(ov.Done)
	ov.Due = nonNil(ov.Due)
	return ov, nil
}

// List returns one device's records, newest first.
func (o *Operations) List(ctx context.Context, f domain.MaintenanceFilter) ([]domain.MaintenanceRecord, error) {
	if f.DeviceID == "" {
		return nil, fmt.Errorf("%w: deviceId is required", domain.ErrInvalidInput)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, fmt.Errorf("%w: from is after to", domain.ErrInvalidDateRange)
	}

	recs, err := o.store.ListMaintenance(ctx, f)
	if err != nil {
		return nil, err
	}
	return nonNil(recs), nil
}

func nonNil(recs []domain.MaintenanceRecord) []domain.MaintenanceRecord {
	if recs == nil {
		return []domain.MaintenanceRecord{}
	}
	return recs
}
