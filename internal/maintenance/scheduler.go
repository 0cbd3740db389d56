// Package maintenance runs the per-device maintenance lifecycle: escalating
// overdue windows, seeding the next one and the operator actions on records.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"axle-monitor/core/internal/config"
	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/metrics"
	"axle-monitor/core/internal/notify"
)

// Store is the maintenance record store together with the device registry
// reads the scheduler needs.
type Store interface {
	Devices(ctx context.Context) ([]domain.Device, error)
	DeviceByID(ctx context.Context, id string) (*domain.Device, error)

	EscalateOverdue(ctx context.Context, deviceID string, cutoff time.Time) (int, error)
	HasUpcomingFrom(ctx context.Context, deviceID string, from time.Time) (bool, error)
	LatestUpcomingBefore(ctx context.Context, deviceID string, t time.Time) (time.Time, bool, error)
	InsertMaintenance(ctx context.Context, rec domain.MaintenanceRecord) (bool, error)
	InsertMaintenanceBatch(ctx context.Context, recs []domain.MaintenanceRecord) (int, error)

	GetMaintenance(ctx context.Context, id string) (*domain.MaintenanceRecord, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.MaintenanceStatus) (bool, error)
	SetEngineer(ctx context.Context, id, name, email, phone string) error
	ListMaintenance(ctx context.Context, f domain.MaintenanceFilter) ([]domain.MaintenanceRecord, error)
	MaintenanceOverview(ctx context.Context, now time.Time) (domain.MaintenanceOverview, error)
}

// Notifier is told about every window the scheduler seeds.
type Notifier interface {
	MaintenanceDue(ctx context.Context, device *domain.Device, rec domain.MaintenanceRecord) notify.Result
}

type Config struct {
	Grace             time.Duration
	FirstOffset       time.Duration
	IntervalMonths    int
	DeploymentWindows int
	Workers           int
}

// ConfigFrom converts the file/env settings.
func ConfigFrom(c config.MaintenanceConfig) Config {
	return Config{
		Grace:             time.Duration(c.GraceDays) * 24 * time.Hour,
		FirstOffset:       time.Duration(c.FirstOffsetDays) * 24 * time.Hour,
		IntervalMonths:    c.IntervalMonths,
		DeploymentWindows: c.DeploymentWindows,
		Workers:           c.Workers,
	}
}

func (c Config) withDefaults() Config {
	if c.IntervalMonths <= 0 {
		c.IntervalMonths = 1
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

type TickResult struct {
	Escalated int                   `json:"escalated"`
	Seeded    int                   `json:"seeded"`
	Errors    []*domain.DeviceError `json:"errors"`
}

// Scheduler escalates overdue windows of every device and seeds the next
// window of every active device on each tick.
type Scheduler struct {
	store    Store
	notifier Notifier
	cfg      Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
	newID    func() string
}

// NewScheduler wires the scheduler. notifier may be nil.
func NewScheduler(store Store, notifier Notifier, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("maintenance scheduler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx, time.Now()); err != nil {
			s.logger.Error("maintenance tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick processes every registered device independently. Deactivated devices
// still have their overdue windows escalated but get no new ones. A failure
// on one device is recorded in the result and does not stop the others; the
// returned error is set only when the device list itself cannot be read.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	start := time.Now()
	res := TickResult{Errors: []*domain.DeviceError{}}

	devices, err := s.store.Devices(ctx)
	if err != nil {
		return res, fmt.Errorf("list devices: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i := range devices {
		device := &devices[i]
		g.Go(func() error {
			escalated, seeded, derr := s.processDevice(gctx, device, now)

			mu.Lock()
			defer mu.Unlock()
			res.Escalated += escalated
			res.Seeded += seeded
			if derr != nil {
				res.Errors = append(res.Errors, derr)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.Tick(res.Escalated, res.Seeded, len(res.Errors), time.Since(start))
	for _, derr := range res.Errors {
		s.logger.Warn("maintenance tick device failed",
			zap.String("device_id", derr.DeviceID),
			zap.String("op", derr.Op),
			zap.Error(derr.Err))
	}
	if res.Escalated > 0 || res.Seeded > 0 || len(res.Errors) > 0 {
		s.logger.Info("maintenance tick",
			zap.Int("devices", len(devices)),
			zap.Int("escalated", res.Escalated),
			zap.Int("seeded", res.Seeded),
			zap.Int("errors", len(res.Errors)))
	}
	return res, nil
}

func (s *Scheduler) processDevice(ctx context.Context, device *domain.Device, now time.Time) (int, int, *domain.DeviceError) {
	fail := func(op string, err error) *domain.DeviceError {
		return &domain.DeviceError{DeviceID: device.ID, Op: op, Err: err}
	}

	escalated, err := s.store.EscalateOverdue(ctx, device.ID, now.Add(-s.cfg.Grace))
	if err != nil {
		return 0, 0, fail("escalate", err)
	}

	if !device.Active {
		return escalated, 0, nil
	}
	if !device.DeployDate.IsZero() && device.DeployDate.After(now) {
		return escalated, 0, nil
	}

	has, err := s.store.HasUpcomingFrom(ctx, device.ID, now)
	if err != nil {
		return escalated, 0, fail("check upcoming", err)
	}
	if has {
		return escalated, 0, nil
	}

	next, err := s.nextWindow(ctx, device, now)
	if err != nil {
		return escalated, 0, fail("next window", err)
	}

	rec := domain.MaintenanceRecord{
		ID:           s.newID(),
		DeviceID:     device.ID,
		Status:       domain.StatusUpcoming,
		MaintainDate: next,
	}
	inserted, err := s.store.InsertMaintenance(ctx, rec)
	if err != nil {
		return escalated, 0, fail("seed", err)
	}
	if !inserted {
		return escalated, 0, nil
	}

	if s.notifier != nil {
		r := s.notifier.MaintenanceDue(ctx, device, rec)
		if r.Failed > 0 {
			s.logger.Warn("maintenance reminder not delivered",
				zap.String("device_id", device.ID),
				zap.Int("failed", r.Failed))
		}
	}
	return escalated, 1, nil
}

// nextWindow is one interval past the latest past upcoming window, or the
// first offset past deployment when there is none, rolled forward by whole
// intervals until it is not before now.
func (s *Scheduler) nextWindow(ctx context.Context, device *domain.Device, now time.Time) (time.Time, error) {
	latest, ok, err := s.store.LatestUpcomingBefore(ctx, device.ID, now)
	if err != nil {
		return time.Time{}, err
	}

	base := device.DeployDate.Add(s.cfg.FirstOffset)
	if device.DeployDate.IsZero() {
		base = now.Add(s.cfg.FirstOffset)
	}
	if ok {
		base = latest.AddDate(0, s.cfg.IntervalMonths, 0)
	}
	return rollForward(base, now, s.cfg.IntervalMonths), nil
}

// rollForward steps from base, always counting months from base itself so
// month-end dates do not drift.
func rollForward(base, now time.Time, months int) time.Time {
	next := base
	for k := 1; next.Before(now); k++ {
		next = base.AddDate(0, k*months, 0)
	}
	return next
}
