package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
)

func newTestOperations(store Store) *Operations {
	return NewOperations(store, testConfig(), zap.NewNop())
}

func TestSeedDeployment(t *testing.T) {
	d := device("d1", now)
	d.MaintenanceWindows = 3
	store := newMemStore(d)
	ops := newTestOperations(store)

	n, err := ops.SeedDeployment(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs := store.byDevice("d1")
	require.Len(t, recs, 3)
	first := now.AddDate(0, 0, 30)
	for i, r := range recs {
		assert.Equal(t, first.AddDate(0, i, 0), r.MaintainDate)
		assert.Equal(t, domain.StatusUpcoming, r.Status)
	}

	n, err = ops.SeedDeployment(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSeedDeployment_DefaultWindowCount(t *testing.T) {
	store := newMemStore(device("d1", now))

	n, err := newTestOperations(store).SeedDeployment(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestSeedDeployment_UnknownDevice(t *testing.T) {
	_, err := newTestOperations(newMemStore()).SeedDeployment(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMarkDone(t *testing.T) {
	store := newMemStore()
	store.add(domain.MaintenanceRecord{ID: "up", DeviceID: "d1", Status: domain.StatusUpcoming, MaintainDate: now})
	store.add(domain.MaintenanceRecord{ID: "late", DeviceID: "d1", Status: domain.StatusNotDone, MaintainDate: now.AddDate(0, -2, 0)})
	ops := newTestOperations(store)

	rec, err := ops.MarkDone(context.Background(), "up")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, rec.Status)

	_, err = ops.MarkDone(context.Background(), "up")
	assert.True(t, errors.Is(err, domain.ErrInvalidStatus))

	_, err = ops.MarkDone(context.Background(), "late")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = ops.MarkDone(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAssignEngineer(t *testing.T) {
	store := newMemStore()
	store.add(domain.MaintenanceRecord{ID: "up", DeviceID: "d1", Status: domain.StatusUpcoming, MaintainDate: now})
	ops := newTestOperations(store)

	rec, err := ops.AssignEngineer(context.Background(), "up", Engineer{Name: "R. Sharma", Email: "r.sharma@rail.example", ContactNumber: "9800000000"})
	require.NoError(t, err)
	assert.True(t, rec.IsContactAdded)
	assert.Equal(t, "R. Sharma", *rec.EngineerName)

	_, err = ops.AssignEngineer(context.Background(), "up", Engineer{Name: "x", Email: "not-an-email"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = ops.AssignEngineer(context.Background(), "up", Engineer{Email: "a@b.co"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = ops.AssignEngineer(context.Background(), "missing", Engineer{Name: "x", Email: "a@b.co"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestList(t *testing.T) {
	store := newMemStore()
	store.add(domain.MaintenanceRecord{ID: "a", DeviceID: "d1", Status: domain.StatusDone, MaintainDate: now.AddDate(0, -1, 0)})
	store.add(domain.MaintenanceRecord{ID: "b", DeviceID: "d1", Status: domain.StatusUpcoming, MaintainDate: now})
	ops := newTestOperations(store)

	recs, err := ops.List(context.Background(), domain.MaintenanceFilter{DeviceID: "d1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)

	recs, err = ops.List(context.Background(), domain.MaintenanceFilter{DeviceID: "d2"})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	_, err = ops.List(context.Background(), domain.MaintenanceFilter{})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = ops.List(context.Background(), domain.MaintenanceFilter{DeviceID: "d1", Status: "Sometime"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = ops.List(context.Background(), domain.MaintenanceFilter{DeviceID: "d1", From: now, To: now.AddDate(0, 0, -1)})
	assert.True(t, errors.Is(err, domain.ErrInvalidDateRange))
}

func TestOverview_NeverNil(t *testing.T) {
	ov, err := newTestOperations(newMemStore()).Overview(context.Background(), now)
	require.NoError(t, err)
	assert.NotNil(t, ov.Upcoming)
	assert.NotNil(t, ov.Done)
	assert.NotNil(t, ov.Due)
}
