package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/telemetry"
)

type memFrames struct {
	frames []domain.RawFrame
	err    error
}

func (m *memFrames) FramesByDevice(_ context.Context, key string, from, to time.Time) ([]domain.RawFrame, error) {
	r := telemetry.TimeRange{Start: from, End: to}
	var out []domain.RawFrame
	for _, f := range m.frames {
		if f.DeviceKey == key && r.Contains(f.ReceivedAt) {
			out = append(out, f)
		}
	}
	return out, m.err
}

func (m *memFrames) FramesByTrain(_ context.Context, train string) ([]domain.RawFrame, error) {
	var out []domain.RawFrame
	for _, f := range m.frames {
		if f.TrainID == train {
			out = append(out, f)
		}
	}
	return out, m.err
}

func (m *memFrames) Frames(_ context.Context, from, to time.Time) ([]domain.RawFrame, error) {
	r := telemetry.TimeRange{Start: from, End: to}
	var out []domain.RawFrame
	for _, f := range m.frames {
		if r.Contains(f.ReceivedAt) {
			out = append(out, f)
		}
	}
	return out, m.err
}

type memDevices []domain.Device

func (m memDevices) DeviceByKey(_ context.Context, key string) (*domain.Device, error) {
	for i := range m {
		if m[i].Name == key {
			return &m[i], nil
		}
	}
	return nil, fmt.Errorf("device %s: %w", key, domain.ErrNotFound)
}

func (m memDevices) Devices(context.Context) ([]domain.Device, error) {
	return append([]domain.Device(nil), m...), nil
}

var base = time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)

// row builds an axle row with one left axle-box temperature set.
func row(axle int, leftBox float64, proxy1, proxy2 float64) string {
	return fmt.Sprintf("[%d, %v,0,0,0, 0,0, 0,0, 0,0,0,0, 0,0, 0,0, %v, %v]", axle, leftBox, proxy1, proxy2)
}

func rawFrame(t *testing.T, id int64, device, train string, at time.Time, rows []string, extra string) domain.RawFrame {
	t.Helper()
	payload := fmt.Sprintf(`{"key":%q,"ID":%q,"temperature_arr":[%s]%s}`, device, train, strings.Join(rows, ","), extra)
	var f domain.RawFrame
	require.NoError(t, json.Unmarshal([]byte(payload), &f))
	f.ID = id
	f.ReceivedAt = at
	return f
}

func repeat(n int, r string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func testRegistry() memDevices {
	th := domain.DeviceThresholds{Hot: 70, Warm: 60, Differential: 50}
	return memDevices{
		{ID: "dev-a", Name: "A", Thresholds: th, Location: "Itarsi", Division: "Bhopal", Zone: "WCR"},
		{ID: "dev-b", Name: "B", Thresholds: th, Location: "Nagpur"},
	}
}

func TestTrainSummaries_SingleDevice(t *testing.T) {
	frames := &memFrames{frames: []domain.RawFrame{
		rawFrame(t, 1, "A", "T1", base, repeat(8, row(1, 10, 5, 9)), `,"SystemState":[0,1,1,90,30],"DT":[[10,0,0],[3,7,2024]]`),
		rawFrame(t, 2, "A", "T1", base.Add(time.Second), append(repeat(5, row(2, 65, 9, 5)), `[1,2]`), `,"SystemState":[0,1,1,90,33]`),
		rawFrame(t, 3, "A", "T2", base.Add(time.Minute), []string{row(1, 80, 1, 2)}, ""),
		rawFrame(t, 4, "B", "T1", base, []string{row(1, 80, 1, 2)}, ""),
		{ID: 5, DeviceKey: "A", TrainID: "T3", ReceivedAt: base},
	}}
	svc := NewTelemetry(frames, testRegistry(), nil, zap.NewNop())

	report, err := svc.TrainSummaries(context.Background(), "A", telemetry.TimeRange{})
	require.NoError(t, err)

	require.Len(t, report.Trains, 2)
	t1 := report.Trains[0]
	assert.Equal(t, "T1", t1.TrainID)
	assert.Equal(t, 14, t1.TotalAxles)
	assert.Equal(t, 2, t1.TotalCoaches)
	assert.Equal(t, domain.DirectionUp, t1.Direction)
	assert.Equal(t, 33.0, *t1.AmbientTemperature)
	assert.Equal(t, "10:00:00", *t1.LastKnownDateTime.Time)
	assert.Equal(t, 5, t1.WarningCount)
	assert.Equal(t, "Itarsi", t1.Device.Location)
	assert.Equal(t, "WCR", t1.Device.Zone)

	assert.Equal(t, "T2", report.Trains[1].TrainID)
	assert.Equal(t, 1, report.Trains[1].WarningCount)

	assert.Equal(t, 1, report.SkippedFrames)
	assert.Equal(t, 1, report.SkippedRows)
	assert.True(t, report.Partial())
}

func TestTrainSummaries_UnknownDevice(t *testing.T) {
	svc := NewTelemetry(&memFrames{}, testRegistry(), nil, zap.NewNop())

	_, err := svc.TrainSummaries(context.Background(), "Z", telemetry.TimeRange{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTrainSummaries_TimeRangeUsesIngestionTime(t *testing.T) {
	frames := &memFrames{frames: []domain.RawFrame{
		rawFrame(t, 1, "A", "OLD", base.AddDate(0, 0, -10), []string{row(1, 0, 1, 2)}, `,"DT":[[1,0,0],[1,1,2030]]`),
		rawFrame(t, 2, "A", "NEW", base, []string{row(1, 0, 1, 2)}, `,"DT":[[1,0,0],[1,1,2001]]`),
	}}
	svc := NewTelemetry(frames, testRegistry(), nil, zap.NewNop())

	report, err := svc.TrainSummaries(context.Background(), "A", telemetry.TimeRange{Start: base.AddDate(0, 0, -1), End: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, report.Trains, 1)
	assert.Equal(t, "NEW", report.Trains[0].TrainID)
}

func TestTrainSummaries_AllDevicesSortedAndPartial(t *testing.T) {
	frames := &memFrames{frames: []domain.RawFrame{
		rawFrame(t, 1, "A", "LATE", base, []string{row(1, 0, 1, 2)}, `,"DT":[[12,0,0],[3,7,2024]]`),
		rawFrame(t, 2, "B", "EARLY", base, []string{row(1, 0, 1, 2)}, `,"DT":[[8,0,0],[3,7,2024]]`),
		rawFrame(t, 3, "GHOST", "X", base, []string{row(1, 0, 1, 2)}, ""),
	}}
	svc := NewTelemetry(frames, testRegistry(), nil, zap.NewNop())

	report, err := svc.TrainSummaries(context.Background(), "", telemetry.TimeRange{})
	require.NoError(t, err)
	require.Len(t, report.Trains, 2)
	assert.Equal(t, "EARLY", report.Trains[0].TrainID)
	assert.Equal(t, "LATE", report.Trains[1].TrainID)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "GHOST", report.Errors[0].DeviceID)
	assert.True(t, errors.Is(report.Errors[0], domain.ErrNotFound))
	assert.Equal(t, 1, report.SkippedFrames)
}

func TestWarnings_ByTrainSpansFramesForCoachNumbers(t *testing.T) {
	frames := &memFrames{frames: []domain.RawFrame{
		rawFrame(t, 1, "A", "T1", base, repeat(6, row(1, 0, 1, 2)), ""),
		rawFrame(t, 2, "A", "T1", base.Add(time.Second), []string{row(7, 72, 1, 2)}, ""),
		rawFrame(t, 3, "B", "T1", base, []string{row(1, 55, 2, 1)}, ""),
	}}
	svc := NewTelemetry(frames, testRegistry(), nil, zap.NewNop())

	report, err := svc.Warnings(context.Background(), WarningQuery{TrainID: "T1"})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, 1, report.Warnings[0].CoachNumber)
	assert.Equal(t, domain.SeverityHot, report.Warnings[0].Severity)
	assert.Equal(t, domain.DirectionDown, report.Warnings[0].Direction)
	assert.Equal(t, "B", report.Warnings[1].Device.DeviceKey)
	assert.Equal(t, domain.DirectionUp, report.Warnings[1].Direction)

	report, err = svc.Warnings(context.Background(), WarningQuery{TrainID: "T1", DeviceKey: "B"})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, domain.LocomotiveCoach, report.Warnings[0].CoachNumber)

	_, err = svc.Warnings(context.Background(), WarningQuery{TrainID: "NOPE"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestWarnings_AllDevicesAscending(t *testing.T) {
	frames := &memFrames{frames: []domain.RawFrame{
		rawFrame(t, 1, "A", "T1", base.Add(time.Hour), []string{row(1, 61, 1, 2)}, ""),
		rawFrame(t, 2, "B", "T2", base, []string{row(1, 71, 1, 2)}, ""),
	}}
	svc := NewTelemetry(frames, testRegistry(), nil, zap.NewNop())

	report, err := svc.Warnings(context.Background(), WarningQuery{})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, "T2", report.Warnings[0].TrainID)
	assert.Equal(t, "T1", report.Warnings[1].TrainID)
	assert.Equal(t, domain.SeverityWarm, report.Warnings[1].Severity)
}

func TestWarnings_StoreErrorPropagates(t *testing.T) {
	svc := NewTelemetry(&memFrames{err: domain.ErrUpstreamUnavailable}, testRegistry(), nil, zap.NewNop())

	_, err := svc.Warnings(context.Background(), WarningQuery{DeviceKey: "A"})
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
}

func TestDeviceOverview(t *testing.T) {
	frames := &memFrames{frames: []domain.RawFrame{
		rawFrame(t, 10, "A", "T1", base, []string{row(1, 40, 1, 2), `[9]`},
			`,"sensorStatusArr":[1,0],"SystemState":[0,1],"DT":[[8,0,0],[1,7,2024]]`),
		rawFrame(t, 11, "A", "T2", base.Add(time.Hour), []string{row(2, 41, 1, 2)},
			`,"sensorStatusArr":[1],"SystemState":[1,1],"DT":[[9,30,0],[2,7,2024]]`),
	}}
	svc := NewTelemetry(frames, testRegistry(), nil, zap.NewNop())

	ov, err := svc.DeviceOverview(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(10), ov.FrameID)
	assert.Equal(t, base, ov.FirstSeen)
	assert.Len(t, ov.Readings, 2)
	assert.Equal(t, []int{1, 0, 1}, ov.SensorStatus)
	assert.True(t, *ov.SystemState.PanelDoorOpen)
	assert.Equal(t, "09:30:00", *ov.DateTime.Time)
	assert.Equal(t, "01/07/2024", *ov.DateTime.Date)
	assert.Equal(t, 1, ov.SkippedRows)

	_, err = svc.DeviceOverview(context.Background(), "B")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTrainTemperatures_Paginates(t *testing.T) {
	frames := &memFrames{frames: []domain.RawFrame{
		rawFrame(t, 1, "A", "T1", base, []string{row(1, 10, 1, 2), row(2, 20, 1, 2)}, ""),
		rawFrame(t, 2, "A", "T1", base, []string{row(3, 30, 1, 2)}, ""),
	}}
	svc := NewTelemetry(frames, testRegistry(), nil, zap.NewNop())

	got, err := svc.TrainTemperatures(context.Background(), "T1", Page{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 2, got.CurrentPage)
	assert.Equal(t, 2, got.TotalPages)
	require.Len(t, got.Axles, 1)
	assert.Equal(t, "Axle 3", got.Axles[0].Label)
	assert.Equal(t, 30.0, got.Axles[0].LeftAxleBoxes[0])

	_, err = svc.TrainTemperatures(context.Background(), "", Page{})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = svc.TrainTemperatures(context.Background(), "T9", Page{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, Paginate(items, Page{Page: 2, Limit: 2}))
	assert.Equal(t, []int{5}, Paginate(items, Page{Page: 3, Limit: 2}))
	assert.Empty(t, Paginate(items, Page{Page: 9, Limit: 2}))
	assert.Equal(t, items, Paginate(items, Page{}))
	assert.Equal(t, 3, Page{Limit: 2}.TotalPages(5))
	assert.Equal(t, 1, Page{Limit: 2}.TotalPages(0))
}
