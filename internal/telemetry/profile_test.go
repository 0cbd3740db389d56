package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axle-monitor/core/internal/domain"
)

func TestProfiles(t *testing.T) {
	rows := []domain.AxleRow{
		{1, 30, 45, 41, 38, 20, 25, 33, 31, 40, 39, 44, 37, 22, 21, 30, 35, 9, 8},
		{2, 3},
	}

	got, skipped := Profiles(rows, 5)
	assert.Equal(t, 1, skipped)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, "Axle 5", p.Label)
	assert.Equal(t, []float64{45, 41, 38, 30}, p.LeftAxleBoxes)
	assert.Equal(t, []float64{44, 40, 39, 37}, p.RightAxleBoxes)
	assert.Equal(t, []float64{25, 20}, p.LeftWheels)
	assert.Equal(t, []float64{22, 21}, p.RightWheels)
	assert.Equal(t, []float64{33, 31}, p.LeftBrakes)
	assert.Equal(t, []float64{35, 30}, p.RightBrakes)
	assert.Equal(t, 1.0, p.Differences.AxleBox)
	assert.Equal(t, 3.0, p.Differences.Wheel)
	assert.Equal(t, -2.0, p.Differences.Brake)
}
