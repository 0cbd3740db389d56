package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"axle-monitor/core/internal/domain"
)

// FrameStore is the append-only raw telemetry table.
type FrameStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewFrameStore(pool *pgxpool.Pool, timeout time.Duration) *FrameStore {
	return &FrameStore{pool: pool, timeout: timeout}
}

func (s *FrameStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var frameColumns = []string{
	"device_key",
	"train_id",
	"payload",
	"received_at",
}

// InsertFrames writes a batch with COPY.
func (s *FrameStore) InsertFrames(ctx context.Context, frames []*domain.RawFrame) error {
	if len(frames) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(frames))
	for i, f := range frames {
		rows[i] = []interface{}{
			f.DeviceKey,
			f.TrainID,
			string(f.RawPayload),
			f.ReceivedAt,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"iot_frames"},
		frameColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return classify(fmt.Sprintf("copy batch of %d frames", len(frames)), err)
	}
	return nil
}

// FramesByDevice returns a device's frames in ingestion order. Zero from or
// to leave that side of the range open.
func (s *FrameStore) FramesByDevice(ctx context.Context, deviceKey string, from, to time.Time) ([]domain.RawFrame, error) {
	where, args := rangeFilter([]string{"device_key = $1"}, []interface{}{deviceKey}, from, to)
	return s.query(ctx, "frames by device", where, args)
}

// FramesByTrain returns every frame recorded for a train.
func (s *FrameStore) FramesByTrain(ctx context.Context, trainID string) ([]domain.RawFrame, error) {
	return s.query(ctx, "frames by train", "train_id = $1", []interface{}{trainID})
}

// Frames returns frames of all devices within the range.
func (s *FrameStore) Frames(ctx context.Context, from, to time.Time) ([]domain.RawFrame, error) {
	where, args := rangeFilter(nil, nil, from, to)
	return s.query(ctx, "frames", where, args)
}

func (s *FrameStore) query(ctx context.Context, op, where string, args []interface{}) ([]domain.RawFrame, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	sql := "SELECT id, device_key, train_id, payload, received_at FROM iot_frames"
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " ORDER BY received_at, id"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []domain.RawFrame
	for rows.Next() {
		var (
			id         int64
			deviceKey  string
			trainID    string
			payload    []byte
			receivedAt time.Time
		)
		if err := rows.Scan(&id, &deviceKey, &trainID, &payload, &receivedAt); err != nil {
			return nil, classify(op, err)
		}
		out = append(out, decodeFrame(id, deviceKey, trainID, payload, receivedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// decodeFrame rebuilds a RawFrame from a stored row. A payload that no longer
// decodes yields a frame without axle rows, which the normalizer rejects.
func decodeFrame(id int64, deviceKey, trainID string, payload []byte, receivedAt time.Time) domain.RawFrame {
	var f domain.RawFrame
	if err := json.Unmarshal(payload, &f); err != nil {
		f = domain.RawFrame{}
	}
	f.ID = id
	f.DeviceKey = deviceKey
	f.TrainID = trainID
	f.ReceivedAt = receivedAt
	f.RawPayload = payload
	return f
}

func rangeFilter(clauses []string, args []interface{}, from, to time.Time) (string, []interface{}) {
	if !from.IsZero() {
		args = append(args, from)
		clauses = append(clauses, fmt.Sprintf("received_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		clauses = append(clauses, fmt.Sprintf("received_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}
