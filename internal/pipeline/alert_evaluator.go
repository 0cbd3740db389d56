package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/metrics"
	"axle-monitor/core/internal/notify"
	"axle-monitor/core/internal/telemetry"
)

type DeviceLookup interface {
	DeviceByKey(ctx context.Context, key string) (*domain.Device, error)
}

type WarningSurfacer interface {
	SurfaceWarnings(ctx context.Context, device *domain.Device, events []domain.WarningEvent) notify.Result
}

// trainIdle is how long a train's axle position is remembered after its
// last frame.
const trainIdle = 30 * time.Minute

type trainCursor struct {
	axles    int
	lastSeen time.Time
}

// AlertEvaluator classifies live frames against their device's thresholds
// and hands the warnings to the bridge.
type AlertEvaluator struct {
	ch      <-chan *domain.RawFrame
	devices DeviceLookup
	bridge  WarningSurfacer
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	// Coach numbering spans frames, so each train's axle count so far is
	// tracked until the train goes quiet.
	mu     sync.Mutex
	trains map[string]*trainCursor
}

func NewAlertEvaluator(
	ch <-chan *domain.RawFrame,
	devices DeviceLookup,
	bridge WarningSurfacer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AlertEvaluator {
	return &AlertEvaluator{
		ch:      ch,
		devices: devices,
		bridge:  bridge,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		trains:  make(map[string]*trainCursor),
	}
}

func (e *AlertEvaluator) Run(ctx context.Context) {
	for {
		select {
		case f, ok := <-e.ch:
			if !ok {
				return
			}
			e.evaluate(context.WithoutCancel(ctx), f)

		case <-ctx.Done():
			return
		}
	}
}

func (e *AlertEvaluator) evaluate(ctx context.Context, raw *domain.RawFrame) {
	frame, err := telemetry.Normalize(*raw)
	if err != nil {
		e.logger.Warn("dropping malformed frame", zap.String("device", raw.DeviceKey), zap.Error(err))
		return
	}

	device, err := e.devices.DeviceByKey(ctx, frame.DeviceKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("frame from unregistered device", zap.String("device", frame.DeviceKey))
		} else {
			e.logger.Error("device lookup failed", zap.String("device", frame.DeviceKey), zap.Error(err))
		}
		return
	}

	offset := e.advance(frame.DeviceKey+"|"+frame.TrainID, len(frame.Rows))
	result := telemetry.ClassifyFrame(frame, device.Thresholds, device.Context(), offset)

	if result.SkippedRows > 0 {
		e.metrics.SkippedRows(result.SkippedRows)
		e.logger.Warn("skipped malformed axle rows",
			zap.String("device", frame.DeviceKey),
			zap.String("train", frame.TrainID),
			zap.Int("skipped", result.SkippedRows))
	}
	if len(result.Warnings) == 0 {
		return
	}
	for _, w := range result.Warnings {
		e.metrics.Warning(string(w.Severity))
	}

	res := e.bridge.SurfaceWarnings(ctx, device, result.Warnings)
	e.logger.Debug("warnings surfaced",
		zap.String("device", frame.DeviceKey),
		zap.String("train", frame.TrainID),
		zap.Int("warnings", len(result.Warnings)),
		zap.Int("surfaced", res.Surfaced),
		zap.Int("deduplicated", res.Deduplicated),
		zap.Int("failed", res.Failed))
}

// advance returns the axles already seen for the train and adds rows to it.
func (e *AlertEvaluator) advance(key string, rows int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for k, c := range e.trains {
		if now.Sub(c.lastSeen) > trainIdle {
			delete(e.trains, k)
		}
	}

	c, ok := e.trains[key]
	if !ok {
		c = &trainCursor{}
		e.trains[key] = c
	}
	offset := c.axles
	c.axles += rows
	c.lastSeen = now
	return offset
}
