package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/telemetry"
)

type StateSaver interface {
	SaveDeviceState(ctx context.Context, st domain.DeviceState) error
}

const (
	stateBatchSize     = 100
	stateFlushInterval = 50 * time.Millisecond
)

// StateWriter keeps each device's latest system state in Redis.
type StateWriter struct {
	ch     <-chan *domain.RawFrame
	redis  StateSaver
	logger *zap.Logger
}

func NewStateWriter(ch <-chan *domain.RawFrame, redis StateSaver, logger *zap.Logger) *StateWriter {
	return &StateWriter{ch: ch, redis: redis, logger: logger}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]*domain.RawFrame, 0, stateBatchSize)
	ticker := time.NewTicker(stateFlushInterval)
	defer ticker.Stop()

	flushCtx := context.WithoutCancel(ctx)

	for {
		select {
		case f, ok := <-w.ch:
			if !ok {
				w.flushBatch(flushCtx, batch)
				return
			}
			batch = append(batch, f)
			if len(batch) >= stateBatchSize {
				w.flushBatch(flushCtx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			w.flushBatch(flushCtx, batch)
			batch = batch[:0]

		case <-ctx.Done():
			w.flushBatch(flushCtx, batch)
			return
		}
	}
}

// flushBatch writes only the newest state per device in the batch.
func (w *StateWriter) flushBatch(ctx context.Context, batch []*domain.RawFrame) {
	latest := make(map[string]domain.DeviceState, len(batch))
	var order []string

	for _, f := range batch {
		st := telemetry.DecodeSystemState(f.SystemState)
		if st == nil {
			continue
		}
		if _, ok := latest[f.DeviceKey]; !ok {
			order = append(order, f.DeviceKey)
		}
		latest[f.DeviceKey] = domain.DeviceState{
			DeviceKey:  f.DeviceKey,
			TrainID:    f.TrainID,
			ReceivedAt: f.ReceivedAt,
			State:      st,
		}
	}

	for _, key := range order {
		if err := w.redis.SaveDeviceState(ctx, latest[key]); err != nil {
			w.logger.Warn("device state update failed", zap.String("device", key), zap.Error(err))
		}
	}
}
