package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/metrics"
)

type FrameInserter interface {
	InsertFrames(ctx context.Context, frames []*domain.RawFrame) error
}

// FrameWriter batches frames into the frame store, flushing on size or
// interval, with one retry per batch.
type FrameWriter struct {
	ch         <-chan *domain.RawFrame
	db         FrameInserter
	batchSize  int
	interval   time.Duration
	retryDelay time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewFrameWriter(
	ch <-chan *domain.RawFrame,
	db FrameInserter,
	batchSize int,
	interval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *FrameWriter {
	return &FrameWriter{
		ch:         ch,
		db:         db,
		batchSize:  batchSize,
		interval:   interval,
		retryDelay: 500 * time.Millisecond,
		metrics:    m,
		logger:     logger,
	}
}

func (w *FrameWriter) Run(ctx context.Context) {
	batch := make([]*domain.RawFrame, 0, w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Frames already accepted are written even while shutting down.
	flushCtx := context.WithoutCancel(ctx)

	for {
		select {
		case f, ok := <-w.ch:
			if !ok {
				w.flush(flushCtx, batch)
				return
			}
			batch = append(batch, f)
			if len(batch) >= w.batchSize {
				w.flush(flushCtx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			w.flush(flushCtx, batch)
			batch = batch[:0]

		case <-ctx.Done():
			w.flush(flushCtx, batch)
			return
		}
	}
}

func (w *FrameWriter) flush(ctx context.Context, batch []*domain.RawFrame) {
	if len(batch) == 0 {
		return
	}

	err := w.db.InsertFrames(ctx, batch)
	if err != nil {
		w.logger.Warn("frame batch write failed, retrying", zap.Int("batch", len(batch)), zap.Error(err))
		time.Sleep(w.retryDelay)
		err = w.db.InsertFrames(ctx, batch)
		if err != nil {
			w.logger.Error("frame batch write permanently failed", zap.Int("batch", len(batch)), zap.Error(err))
			w.metrics.BatchFailed(len(batch))
			return
		}
	}
	w.metrics.BatchWritten(len(batch))
}
