package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/metrics"
	"axle-monitor/core/internal/telemetry"
)

type FrameSource interface {
	FramesByDevice(ctx context.Context, deviceKey string, from, to time.Time) ([]domain.RawFrame, error)
	FramesByTrain(ctx context.Context, trainID string) ([]domain.RawFrame, error)
	Frames(ctx context.Context, from, to time.Time) ([]domain.RawFrame, error)
}

type DeviceRegistry interface {
	DeviceByKey(ctx context.Context, key string) (*domain.Device, error)
	Devices(ctx context.Context) ([]domain.Device, error)
}

// Telemetry answers train and warning queries from stored frames. Every
// call builds its own aggregation state.
type Telemetry struct {
	frames  FrameSource
	devices DeviceRegistry
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewTelemetry(frames FrameSource, devices DeviceRegistry, m *metrics.Metrics, logger *zap.Logger) *Telemetry {
	return &Telemetry{frames: frames, devices: devices, metrics: m, logger: logger}
}

// ScanStats reports what a query had to leave out.
type ScanStats struct {
	SkippedFrames int                   `json:"skippedFrames"`
	SkippedRows   int                   `json:"skippedRows"`
	Errors        []*domain.DeviceError `json:"errors,omitempty"`
}

// Partial reports whether anything was skipped.
func (s ScanStats) Partial() bool {
	return s.SkippedFrames > 0 || s.SkippedRows > 0 || len(s.Errors) > 0
}

func (s *ScanStats) add(o ScanStats) {
	s.SkippedFrames += o.SkippedFrames
	s.SkippedRows += o.SkippedRows
	s.Errors = append(s.Errors, o.Errors...)
}

type TrainReport struct {
	Trains []domain.TrainSummary `json:"trains"`
	ScanStats
}

type WarningReport struct {
	Warnings []domain.WarningEvent `json:"warnings"`
	ScanStats
}

type WarningQuery struct {
	DeviceKey string
	TrainID   string
	Range     telemetry.TimeRange
}

// deviceScan is the result of normalizing, classifying and aggregating one
// device's frames in arrival order.
type deviceScan struct {
	trains   []domain.TrainSummary
	warnings []domain.WarningEvent
	stats    ScanStats
}

func (t *Telemetry) scan(device *domain.Device, frames []domain.RawFrame) deviceScan {
	var out deviceScan
	agg := telemetry.NewAggregator()
	ctx := device.Context()

	for _, raw := range frames {
		nf, err := telemetry.Normalize(raw)
		if err != nil {
			out.stats.SkippedFrames++
			t.logger.Debug("skipping malformed frame", zap.Int64("frame_id", raw.ID), zap.Error(err))
			continue
		}

		cls := telemetry.ClassifyFrame(nf, device.Thresholds, ctx, agg.AxlesSeen(nf.TrainID))
		out.stats.SkippedRows += cls.SkippedRows
		out.warnings = append(out.warnings, cls.Warnings...)
		agg.Fold(nf, len(cls.Warnings), ctx)
	}

	out.trains = agg.Summaries()
	t.metrics.SkippedRows(out.stats.SkippedRows)
	if out.stats.Partial() {
		t.logger.Info("scan skipped records",
			zap.String("device", device.Name),
			zap.Int("skipped_frames", out.stats.SkippedFrames),
			zap.Int("skipped_rows", out.stats.SkippedRows))
	}
	return out
}

// TrainSummaries summarizes the trains seen by one device, or by every
// device when deviceKey is empty. The all-devices view is sorted by device
// time, oldest first.
func (t *Telemetry) TrainSummaries(ctx context.Context, deviceKey string, r telemetry.TimeRange) (*TrainReport, error) {
	if deviceKey != "" {
		device, frames, err := t.deviceFrames(ctx, deviceKey, r)
		if err != nil {
			return nil, err
		}
		s := t.scan(device, frames)
		return &TrainReport{Trains: nonNil(s.trains), ScanStats: s.stats}, nil
	}

	scans, stats, err := t.allDevices(ctx, r)
	if err != nil {
		return nil, err
	}
	report := &TrainReport{Trains: []domain.TrainSummary{}, ScanStats: stats}
	for _, s := range scans {
		report.Trains = append(report.Trains, s.trains...)
		report.add(s.stats)
	}
	sort.SliceStable(report.Trains, func(i, j int) bool {
		return report.Trains[i].SortTime().Before(report.Trains[j].SortTime())
	})
	return report, nil
}

// Warnings classifies the frames selected by q. With a train id the
// frames of that train are used (optionally narrowed to one device); with
// only a device key that device's frames; with neither every device's, in
// device-time order.
func (t *Telemetry) Warnings(ctx context.Context, q WarningQuery) (*WarningReport, error) {
	switch {
	case q.TrainID != "":
		return t.trainWarnings(ctx, q)

	case q.DeviceKey != "":
		device, frames, err := t.deviceFrames(ctx, q.DeviceKey, q.Range)
		if err != nil {
			return nil, err
		}
		s := t.scan(device, frames)
		return &WarningReport{Warnings: nonNil(s.warnings), ScanStats: s.stats}, nil
	}

	scans, stats, err := t.allDevices(ctx, q.Range)
	if err != nil {
		return nil, err
	}
	report := &WarningReport{Warnings: []domain.WarningEvent{}, ScanStats: stats}
	for _, s := range scans {
		report.Warnings = append(report.Warnings, s.warnings...)
		report.add(s.stats)
	}
	sort.SliceStable(report.Warnings, func(i, j int) bool {
		return report.Warnings[i].SortTime().Before(report.Warnings[j].SortTime())
	})
	return report, nil
}

func (t *Telemetry) trainWarnings(ctx context.Context, q WarningQuery) (*WarningReport, error) {
	frames, err := t.frames.FramesByTrain(ctx, q.TrainID)
	if err != nil {
		return nil, err
	}

	byDevice, order := groupByDevice(frames, q.DeviceKey, q.Range)
	if len(order) == 0 {
		return nil, fmt.Errorf("train %s: %w", q.TrainID, domain.ErrNotFound)
	}

	report := &WarningReport{Warnings: []domain.WarningEvent{}}
	for _, key := range order {
		device, err := t.devices.DeviceByKey(ctx, key)
		if err != nil {
			report.Errors = append(report.Errors, &domain.DeviceError{DeviceID: key, Op: "lookup device", Err: err})
			continue
		}
		s := t.scan(device, byDevice[key])
		report.Warnings = append(report.Warnings, s.warnings...)
		report.add(s.stats)
	}
	return report, nil
}

func (t *Telemetry) deviceFrames(ctx context.Context, deviceKey string, r telemetry.TimeRange) (*domain.Device, []domain.RawFrame, error) {
	device, err := t.devices.DeviceByKey(ctx, deviceKey)
	if err != nil {
		return nil, nil, err
	}
	frames, err := t.frames.FramesByDevice(ctx, deviceKey, r.Start, r.End)
	if err != nil {
		return nil, nil, err
	}
	return device, frames, nil
}

// allDevices scans the frames of every device in the range. Frames whose
// device is not registered are reported per device and left out.
func (t *Telemetry) allDevices(ctx context.Context, r telemetry.TimeRange) ([]deviceScan, ScanStats, error) {
	var stats ScanStats

	devices, err := t.devices.Devices(ctx)
	if err != nil {
		return nil, stats, err
	}
	registry := make(map[string]*domain.Device, len(devices))
	for i := range devices {
		registry[devices[i].Name] = &devices[i]
	}

	frames, err := t.frames.Frames(ctx, r.Start, r.End)
	if err != nil {
		return nil, stats, err
	}

	byDevice, order := groupByDevice(frames, "", telemetry.TimeRange{})
	scans := make([]deviceScan, 0, len(order))
	for _, key := range order {
		device, ok := registry[key]
		if !ok {
			stats.SkippedFrames += len(byDevice[key])
			stats.Errors = append(stats.Errors, &domain.DeviceError{
				DeviceID: key, Op: "lookup device", Err: domain.ErrNotFound,
			})
			continue
		}
		scans = append(scans, t.scan(device, byDevice[key]))
	}
	return scans, stats, nil
}

// groupByDevice splits frames per device key, keeping arrival order and the
// order in which devices first appear.
func groupByDevice(frames []domain.RawFrame, onlyDevice string, r telemetry.TimeRange) (map[string][]domain.RawFrame, []string) {
	out := make(map[string][]domain.RawFrame)
	var order []string
	for _, f := range frames {
		if onlyDevice != "" && f.DeviceKey != onlyDevice {
			continue
		}
		if !r.Contains(f.ReceivedAt) {
			continue
		}
		if _, ok := out[f.DeviceKey]; !ok {
			order = append(order, f.DeviceKey)
		}
		out[f.DeviceKey] = append(out[f.DeviceKey], f)
	}
	return out, order
}

// DeviceOverview is the merged view of everything a device has reported.
type DeviceOverview struct {
	FrameID       int64                 `json:"id"`
	DeviceKey     string                `json:"key"`
	FirstSeen     time.Time             `json:"timestamp"`
	Readings      []domain.AxleReading  `json:"temperatureData"`
	SensorStatus  []int                 `json:"sensorStatus"`
	SystemState   *domain.SystemState   `json:"systemState"`
	DateTime      domain.DeviceDateTime `json:"datetime"`
	SkippedFrames int                   `json:"skippedFrames"`
	SkippedRows   int                   `json:"skippedRows"`
}

// DeviceOverview merges all of a device's frames: readings and status
// flags are concatenated, the system state and time come from the latest
// frame carrying them and the date from the earliest.
func (t *Telemetry) DeviceOverview(ctx context.Context, deviceKey string) (*DeviceOverview, error) {
	frames, err := t.frames.FramesByDevice(ctx, deviceKey, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("frames of device %s: %w", deviceKey, domain.ErrNotFound)
	}

	out := &DeviceOverview{
		FrameID:      frames[0].ID,
		DeviceKey:    deviceKey,
		FirstSeen:    frames[0].ReceivedAt,
		Readings:     []domain.AxleReading{},
		SensorStatus: []int{},
	}
	for _, raw := range frames {
		nf, err := telemetry.Normalize(raw)
		if err != nil {
			out.SkippedFrames++
			continue
		}
		out.Readings = append(out.Readings, nf.Readings...)
		out.SensorStatus = append(out.SensorStatus, nf.SensorStatus...)
		out.SkippedRows += nf.SkippedRows
		if nf.SystemState != nil {
			out.SystemState = nf.SystemState
		}
		if nf.DateTime.Time != nil {
			out.DateTime.Time = nf.DateTime.Time
		}
		if out.DateTime.Date == nil {
			out.DateTime.Date = nf.DateTime.Date
		}
	}
	return out, nil
}

type TrainTemperatures struct {
	TrainID     string                  `json:"trainId"`
	TotalCount  int                     `json:"totalCount"`
	CurrentPage int                     `json:"currentPage"`
	TotalPages  int                     `json:"totalPages"`
	Axles       []telemetry.AxleProfile `json:"axlesData"`
	SkippedRows int                     `json:"skippedRows"`
}

// TrainTemperatures profiles every axle of a train across all its frames.
// Axles are labelled by their ordinal in the whole train.
func (t *Telemetry) TrainTemperatures(ctx context.Context, trainID string, p Page) (*TrainTemperatures, error) {
	if trainID == "" {
		return nil, fmt.Errorf("%w: train id is required", domain.ErrInvalidInput)
	}
	frames, err := t.frames.FramesByTrain(ctx, trainID)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("train %s: %w", trainID, domain.ErrNotFound)
	}

	var rows []domain.AxleRow
	for _, raw := range frames {
		nf, err := telemetry.Normalize(raw)
		if err != nil {
			if !errors.Is(err, domain.ErrMalformedFrame) {
				return nil, err
			}
			continue
		}
		rows = append(rows, nf.Rows...)
	}

	start, end := p.Bounds(len(rows))
	profiles, skipped := telemetry.Profiles(rows[start:end], start+1)
	return &TrainTemperatures{
		TrainID:     trainID,
		TotalCount:  len(rows),
		CurrentPage: p.normalized().Page,
		TotalPages:  p.TotalPages(len(rows)),
		Axles:       nonNil(profiles),
		SkippedRows: skipped,
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
