package domain

import (
	"encoding/json"
	"time"
)

// RawFrame is one ingested telemetry record as the device sent it. The nested
// arrays stay undecoded until the normalizer validates their shape.
type RawFrame struct {
	ID         int64     `json:"-"`
	ReceivedAt time.Time `json:"-"`

	DeviceKey    string          `json:"key"`
	TrainID      string          `json:"ID"`
	AxleRows     json.RawMessage `json:"temperature_arr,omitempty"`
	SensorStatus json.RawMessage `json:"sensorStatusArr,omitempty"`
	SystemState  json.RawMessage `json:"SystemState,omitempty"`
	DT           json.RawMessage `json:"DT,omitempty"`

	RawPayload []byte `json:"-"`
}

// Axle row slot layout. Firmware contract; do not reorder.
const (
	AxleRowWidth = 19

	SlotAxleNumber = 0
	SlotProxy1     = 17
	SlotProxy2     = 18

	TemperatureSlots = 16
)

// AxleRow is a raw per-axle vector straight from temperature_arr.
type AxleRow []float64

// SlotRange is a half-open [Start, End) span of an axle row holding one
// sensor group on one side.
type SlotRange struct {
	Group SensorGroup
	Side  Side
	Start int
	End   int
}

// SensorLayout partitions slots 1..16 into the six sensor groups.
var SensorLayout = []SlotRange{
	{Group: GroupAxleBox, Side: SideLeft, Start: 1, End: 5},
	{Group: GroupWheel, Side: SideLeft, Start: 5, End: 7},
	{Group: GroupBrake, Side: SideLeft, Start: 7, End: 9},
	{Group: GroupAxleBox, Side: SideRight, Start: 9, End: 13},
	{Group: GroupWheel, Side: SideRight, Start: 13, End: 15},
	{Group: GroupBrake, Side: SideRight, Start: 15, End: 17},
}

// AxleReading is a validated axle row.
type AxleReading struct {
	AxleNumber      int       `json:"axleNumber"`
	Temperatures    []float64 `json:"temperatures"`
	Proxy1Timestamp float64   `json:"proxy1Timestamp"`
	Proxy2Timestamp float64   `json:"proxy2Timestamp"`
}

// Reading validates the row width and splits it into its named parts.
func (r AxleRow) Reading() (AxleReading, error) {
	if len(r) != AxleRowWidth {
		return AxleReading{}, ErrRowShape
	}
	temps := make([]float64, TemperatureSlots)
	copy(temps, r[1:1+TemperatureSlots])
	return AxleReading{
		AxleNumber:      int(r[SlotAxleNumber]),
		Temperatures:    temps,
		Proxy1Timestamp: r[SlotProxy1],
		Proxy2Timestamp: r[SlotProxy2],
	}, nil
}

// Direction reports the travel direction implied by the proximity timestamps.
func (r AxleRow) Direction() Direction {
	if len(r) != AxleRowWidth {
		return DirectionUnknown
	}
	if r[SlotProxy1] > r[SlotProxy2] {
		return DirectionUp
	}
	return DirectionDown
}

type Direction string

const (
	DirectionUp      Direction = "Up"
	DirectionDown    Direction = "Down"
	DirectionUnknown Direction = "Unknown"
)

// DeviceDateTime is the on-device clock reading. Either part is nil when the
// frame did not carry all three of its components.
type DeviceDateTime struct {
	Time *string `json:"time"`
	Date *string `json:"date"`
}

// Known reports whether both parts were reconstructed.
func (d DeviceDateTime) Known() bool {
	return d.Time != nil && d.Date != nil
}

// Timestamp parses the reconstructed pair as a wall-clock time in UTC.
func (d DeviceDateTime) Timestamp() (time.Time, bool) {
	if !d.Known() {
		return time.Time{}, false
	}
	t, err := time.Parse("02/01/2006 15:04:05", *d.Date+" "+*d.Time)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SystemState is the decoded system-state vector. Slot positions are fixed
// by the device firmware.
type SystemState struct {
	PanelDoorOpen  *bool       `json:"panelDoorOpen"`
	MainPowerOn    *bool       `json:"mainPowerOn"`
	SMPSOn         *bool       `json:"smpsOn"`
	BatteryPercent *float64    `json:"batteryPercentage"`
	AmbientTemps   [4]*float64 `json:"ambientTemperatures"`
	PanelBoxTemp   *float64    `json:"panelBoxTemp"`
	PCBBoxTemp     *float64    `json:"pcbBoxTemp"`
	BatteryTemp    *float64    `json:"batteryTemp"`
}

// Ambient is the primary ambient temperature (slot 4).
func (s *SystemState) Ambient() *float64 {
	if s == nil {
		return nil
	}
	return s.AmbientTemps[0]
}

// NormalizedFrame is the canonical form of one RawFrame.
type NormalizedFrame struct {
	ID         int64
	DeviceKey  string
	TrainID    string
	ReceivedAt time.Time

	// Rows keeps every row in arrival order, including malformed ones, so
	// consumers can count axles and skip bad rows themselves.
	Rows         []AxleRow
	Readings     []AxleReading
	SkippedRows  int
	SensorStatus []int
	SystemState  *SystemState
	DateTime     DeviceDateTime
	Direction    Direction
}

// DeviceState is the latest decoded system state reported by a device.
type DeviceState struct {
	DeviceKey  string       `json:"deviceName"`
	TrainID    string       `json:"trainId"`
	ReceivedAt time.Time    `json:"receivedAt"`
	State      *SystemState `json:"systemState"`
}
