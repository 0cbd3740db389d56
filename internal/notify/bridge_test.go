package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/metrics"
	"axle-monitor/core/internal/store"
)

type sent struct {
	recipient string
	msg       Message
}

type fakePusher struct {
	mu    sync.Mutex
	sent  []sent
	fail  map[string]error
	block bool
}

func (f *fakePusher) Name() string { return "fake" }

func (f *fakePusher) Notify(ctx context.Context, recipient string, msg Message) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := f.fail[recipient]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{recipient, msg})
	return nil
}

type fakeMailer struct {
	to   []string
	data []interface{}
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, template string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.data = append(f.data, data)
	return nil
}

func testDevice() *domain.Device {
	return &domain.Device{
		ID:       "dev-1",
		Name:     "HBD-01",
		Location: "Itarsi",
		NotifiedUsers: []domain.NotifiedUser{
			{UserName: "asha", Email: "asha@rail.in"},
			{UserName: "control-room"},
		},
	}
}

func warning(side domain.Side, index int, train string) domain.WarningEvent {
	return domain.WarningEvent{
		SensorGroup: domain.GroupAxleBox,
		Side:        side,
		SensorIndex: index,
		Temperature: 72,
		Severity:    domain.SeverityHot,
		TrainID:     train,
		Device:      domain.DeviceContext{DeviceKey: "HBD-01"},
	}
}

func TestSurfaceWarnings_DeduplicatesWithinScan(t *testing.T) {
	push := &fakePusher{}
	m := metrics.New(prometheus.NewRegistry())
	b := NewBridge(push, nil, nil, BridgeConfig{SendTimeout: time.Second}, m, zap.NewNop())

	res := b.SurfaceWarnings(context.Background(), testDevice(), []domain.WarningEvent{
		warning(domain.SideLeft, 3, "T1"),
		warning(domain.SideLeft, 3, "T1"),
		warning(domain.SideRight, 3, "T1"),
		warning(domain.SideLeft, 3, "T2"),
	})

	assert.Equal(t, Result{Surfaced: 3, Deduplicated: 1}, res)
	assert.Len(t, push.sent, 6)
	assert.Equal(t, "asha@rail.in", push.sent[0].recipient)
	assert.Equal(t, "control-room", push.sent[1].recipient)
	assert.Equal(t, KindWarning, push.sent[0].msg.Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifyDeduped))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.NotifySent.WithLabelValues("fake")))
}

func TestSurfaceWarnings_DeduplicatesAcrossScans(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	push := &fakePusher{}
	b := NewBridge(push, nil, store.NewRedisStoreFromClient(client, 0),
		BridgeConfig{DedupTTL: time.Hour}, nil, zap.NewNop())

	events := []domain.WarningEvent{warning(domain.SideLeft, 1, "T1")}
	first := b.SurfaceWarnings(context.Background(), testDevice(), events)
	second := b.SurfaceWarnings(context.Background(), testDevice(), events)

	assert.Equal(t, 1, first.Surfaced)
	assert.Equal(t, Result{Deduplicated: 1}, second)
	assert.Len(t, push.sent, 2)
}

func TestSurfaceWarnings_HigherSeverityResurfacesAcrossScans(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	push := &fakePusher{}
	b := NewBridge(push, nil, store.NewRedisStoreFromClient(client, 0),
		BridgeConfig{DedupTTL: time.Hour}, nil, zap.NewNop())

	warm := warning(domain.SideLeft, 1, "T1")
	warm.Severity = domain.SeverityDifferential
	warm.Temperature = 55
	hot := warning(domain.SideLeft, 1, "T1")
	hot.AxleNumber = 30

	first := b.SurfaceWarnings(context.Background(), testDevice(), []domain.WarningEvent{warm})
	second := b.SurfaceWarnings(context.Background(), testDevice(), []domain.WarningEvent{hot})
	third := b.SurfaceWarnings(context.Background(), testDevice(), []domain.WarningEvent{hot})

	assert.Equal(t, Result{Surfaced: 1}, first)
	assert.Equal(t, Result{Surfaced: 1}, second)
	assert.Equal(t, Result{Deduplicated: 1}, third)
	require.Len(t, push.sent, 4)
	assert.Equal(t, domain.SeverityHot, push.sent[2].msg.Data.(domain.WarningEvent).Severity)
}

func TestSurfaceWarnings_UndeliveredWarningIsNotClaimed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	push := &fakePusher{fail: map[string]error{
		"asha@rail.in": errors.New("offline"),
		"control-room": errors.New("offline"),
	}}
	b := NewBridge(push, nil, store.NewRedisStoreFromClient(client, 0),
		BridgeConfig{DedupTTL: time.Hour}, nil, zap.NewNop())

	events := []domain.WarningEvent{warning(domain.SideLeft, 1, "T1")}
	first := b.SurfaceWarnings(context.Background(), testDevice(), events)
	assert.Equal(t, Result{Failed: 2}, first)
	assert.Empty(t, mr.Keys())

	push.fail = nil
	second := b.SurfaceWarnings(context.Background(), testDevice(), events)
	assert.Equal(t, Result{Surfaced: 1}, second)
	assert.Len(t, push.sent, 2)
	assert.Len(t, mr.Keys(), 1)
}

func TestSurfaceWarnings_DedupOutageStillSends(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	push := &fakePusher{}
	b := NewBridge(push, nil, store.NewRedisStoreFromClient(client, 0), BridgeConfig{}, nil, zap.NewNop())

	res := b.SurfaceWarnings(context.Background(), testDevice(), []domain.WarningEvent{warning(domain.SideLeft, 1, "T1")})
	assert.Equal(t, 1, res.Surfaced)
}

func TestSurfaceWarnings_FailuresAreCountedNotReturned(t *testing.T) {
	push := &fakePusher{fail: map[string]error{"asha@rail.in": errors.New("offline")}}
	b := NewBridge(push, nil, nil, BridgeConfig{}, nil, zap.NewNop())

	res := b.SurfaceWarnings(context.Background(), testDevice(), []domain.WarningEvent{warning(domain.SideLeft, 1, "T1")})
	assert.Equal(t, Result{Surfaced: 1, Failed: 1}, res)
}

func TestSurfaceWarnings_TimeoutIsNonFatal(t *testing.T) {
	push := &fakePusher{block: true}
	b := NewBridge(push, nil, nil, BridgeConfig{SendTimeout: 10 * time.Millisecond}, nil, zap.NewNop())

	res := b.SurfaceWarnings(context.Background(), testDevice(), []domain.WarningEvent{warning(domain.SideLeft, 1, "T1")})
	assert.Equal(t, Result{Failed: 2}, res)
}

func TestSurfaceWarnings_DeviceWithoutUsersUsesDeviceChannel(t *testing.T) {
	push := &fakePusher{}
	b := NewBridge(push, nil, nil, BridgeConfig{}, nil, zap.NewNop())

	b.SurfaceWarnings(context.Background(), &domain.Device{Name: "HBD-09"}, []domain.WarningEvent{warning(domain.SideLeft, 1, "T1")})
	require.Len(t, push.sent, 1)
	assert.Equal(t, "HBD-09", push.sent[0].recipient)
}

func TestMaintenanceDue(t *testing.T) {
	push := &fakePusher{}
	mail := &fakeMailer{}
	b := NewBridge(push, mail, nil, BridgeConfig{}, nil, zap.NewNop())

	rec := domain.MaintenanceRecord{ID: "m-1", MaintainDate: time.Date(2024, 8, 9, 0, 0, 0, 0, time.UTC)}
	res := b.MaintenanceDue(context.Background(), testDevice(), rec)

	assert.Equal(t, Result{Surfaced: 2}, res)
	require.Len(t, push.sent, 2)
	assert.Equal(t, KindMaintenance, push.sent[0].msg.Kind)
	assert.Contains(t, push.sent[0].msg.Body, "09/08/2024")
	assert.Equal(t, []string{"asha@rail.in"}, mail.to)
	assert.Equal(t, "HBD-01", mail.data[0].(map[string]string)["DeviceName"])
}

func TestMaintenanceDue_EmailFailureIsNonFatal(t *testing.T) {
	push := &fakePusher{}
	mail := &fakeMailer{err: errors.New("smtp down")}
	b := NewBridge(push, mail, nil, BridgeConfig{}, nil, zap.NewNop())

	res := b.MaintenanceDue(context.Background(), testDevice(), domain.MaintenanceRecord{MaintainDate: time.Now()})
	assert.Equal(t, Result{Surfaced: 2, Failed: 1}, res)
}
