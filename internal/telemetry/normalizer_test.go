package telemetry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axle-monitor/core/internal/domain"
)

func rawFrame(t *testing.T, payload string) domain.RawFrame {
	t.Helper()
	var f domain.RawFrame
	require.NoError(t, json.Unmarshal([]byte(payload), &f))
	return f
}

func TestNormalize_FullFrame(t *testing.T) {
	raw := rawFrame(t, `{
		"key": "HBD-01",
		"ID": "12951",
		"temperature_arr": [
			[1, 55,65,72,48, 10,10, 10,10, 55,65,72,48, 10,10, 10,10, 100, 50],
			[2, 40,40,40,40, 10,10, 10,10, 40,40,40,40, 10,10, 10,10, 101, 51]
		],
		"sensorStatusArr": [1, 1, 0],
		"SystemState": [0, 1, 0, 87, 31.5, 32, 33, 34, 40, 41, 29],
		"DT": [[8, 5, 9], [3, 7, 2024]]
	}`)

	nf, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "HBD-01", nf.DeviceKey)
	assert.Equal(t, "12951", nf.TrainID)
	assert.Len(t, nf.Rows, 2)
	require.Len(t, nf.Readings, 2)
	assert.Equal(t, 0, nf.SkippedRows)
	assert.Equal(t, 1, nf.Readings[0].AxleNumber)
	assert.Len(t, nf.Readings[0].Temperatures, domain.TemperatureSlots)
	assert.Equal(t, 100.0, nf.Readings[0].Proxy1Timestamp)
	assert.Equal(t, 50.0, nf.Readings[0].Proxy2Timestamp)
	assert.Equal(t, domain.DirectionUp, nf.Direction)
	assert.Equal(t, []int{1, 1, 0}, nf.SensorStatus)

	require.NotNil(t, nf.DateTime.Time)
	require.NotNil(t, nf.DateTime.Date)
	assert.Equal(t, "08:05:09", *nf.DateTime.Time)
	assert.Equal(t, "03/07/2024", *nf.DateTime.Date)

	st := nf.SystemState
	require.NotNil(t, st)
	assert.False(t, *st.PanelDoorOpen)
	assert.True(t, *st.MainPowerOn)
	assert.False(t, *st.SMPSOn)
	assert.Equal(t, 87.0, *st.BatteryPercent)
	assert.Equal(t, 31.5, *st.Ambient())
	assert.Equal(t, 34.0, *st.AmbientTemps[3])
	assert.Equal(t, 40.0, *st.PanelBoxTemp)
	assert.Equal(t, 41.0, *st.PCBBoxTemp)
	assert.Equal(t, 29.0, *st.BatteryTemp)
}

func TestNormalize_PartialDateTimeIsNil(t *testing.T) {
	raw := rawFrame(t, `{"key":"d","ID":"t","temperature_arr":[],"DT":[[8,5],[3,7,2024]]}`)

	nf, err := Normalize(raw)
	require.NoError(t, err)
	assert.Nil(t, nf.DateTime.Time)
	require.NotNil(t, nf.DateTime.Date)
	assert.False(t, nf.DateTime.Known())
	assert.Equal(t, domain.DirectionUnknown, nf.Direction)
}

func TestNormalize_MissingDateTimeAndState(t *testing.T) {
	raw := rawFrame(t, `{"key":"d","ID":"t","temperature_arr":[[1,2,3]]}`)

	nf, err := Normalize(raw)
	require.NoError(t, err)
	assert.Nil(t, nf.DateTime.Time)
	assert.Nil(t, nf.DateTime.Date)
	assert.Nil(t, nf.SystemState)
	assert.Equal(t, 1, nf.SkippedRows)
	assert.Empty(t, nf.Readings)
	assert.Equal(t, domain.DirectionUnknown, nf.Direction)
}

func TestNormalize_BadRowsAreSkippedNotFatal(t *testing.T) {
	raw := rawFrame(t, `{"key":"d","ID":"t","temperature_arr":[
		"oops",
		[1, null, 0,0,0, 0,0, 0,0, 0,0,0,0, 0,0, 0,0, 1, 2],
		[2, 0,0,0,0, 0,0, 0,0, 0,0,0,0, 0,0, 0,0, 1, 2]
	]}`)

	nf, err := Normalize(raw)
	require.NoError(t, err)
	assert.Len(t, nf.Rows, 3)
	assert.Equal(t, 2, nf.SkippedRows)
	require.Len(t, nf.Readings, 1)
	assert.Equal(t, 2, nf.Readings[0].AxleNumber)
}

func TestNormalize_RejectsMalformedFrames(t *testing.T) {
	for name, payload := range map[string]string{
		"no key":           `{"ID":"t","temperature_arr":[]}`,
		"no train":         `{"key":"d","temperature_arr":[]}`,
		"no rows":          `{"key":"d","ID":"t"}`,
		"rows not a list":  `{"key":"d","ID":"t","temperature_arr":{"a":1}}`,
		"rows set to null": `{"key":"d","ID":"t","temperature_arr":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			nf, err := Normalize(rawFrame(t, payload))
			assert.Nil(t, nf)
			assert.True(t, errors.Is(err, domain.ErrMalformedFrame))
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}
}
