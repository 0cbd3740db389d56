package domain

import (
	"fmt"
	"time"
)

type SensorGroup string

const (
	GroupAxleBox SensorGroup = "Axle Sensor"
	GroupWheel   SensorGroup = "Wheel"
	GroupBrake   SensorGroup = "Brake"
)

type Side string

const (
	SideLeft  Side = "Left"
	SideRight Side = "Right"
)

// Severity tiers ascend Differential < Warm < Hot.
type Severity string

const (
	SeverityDifferential Severity = "Differential"
	SeverityWarm         Severity = "Warm"
	SeverityHot          Severity = "Hot"
)

// LocomotiveCoach is the coach number given to the leading locomotive axles.
const LocomotiveCoach = 0

type WarningEvent struct {
	SensorGroup SensorGroup    `json:"warningType"`
	Side        Side           `json:"side"`
	SensorIndex int            `json:"sensorNo"`
	Temperature float64        `json:"temp"`
	Severity    Severity       `json:"status"`
	AxleNumber  int            `json:"axleNo"`
	CoachNumber int            `json:"coachNo"`
	TrainID     string         `json:"trainNo"`
	Direction   Direction      `json:"direction"`
	Device      DeviceContext  `json:"device"`
	DateTime    DeviceDateTime `json:"dateTime"`
	ReceivedAt  time.Time      `json:"receivedAt"`
}

// CoachLabel renders the coach number the way operators read it.
func (w WarningEvent) CoachLabel() string {
	if w.CoachNumber == LocomotiveCoach {
		return "Loco"
	}
	return fmt.Sprintf("%d", w.CoachNumber)
}

// Signature identifies "the same warning" for alert deduplication.
func (w WarningEvent) Signature() string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", w.Device.DeviceKey, w.SensorGroup, w.Side, w.SensorIndex, w.TrainID)
}

// SortTime is the reconstructed device time, falling back to ingestion time.
func (w WarningEvent) SortTime() time.Time {
	if t, ok := w.DateTime.Timestamp(); ok {
		return t
	}
	return w.ReceivedAt
}

type TrainSummary struct {
	TrainID            string         `json:"trainID"`
	TotalAxles         int            `json:"totalAxles"`
	TotalCoaches       int            `json:"totalCoaches"`
	AmbientTemperature *float64       `json:"ambientTemperature"`
	LastKnownDateTime  DeviceDateTime `json:"formattedDateTime"`
	Direction          Direction      `json:"direction"`
	WarningCount       int            `json:"warningCounts"`
	Device             DeviceContext  `json:"device"`
	FirstReceivedAt    time.Time      `json:"firstReceivedAt"`
	LastReceivedAt     time.Time      `json:"lastReceivedAt"`
}

// SortTime is the reconstructed device time, falling back to ingestion time.
func (s TrainSummary) SortTime() time.Time {
	if t, ok := s.LastKnownDateTime.Timestamp(); ok {
		return t
	}
	return s.LastReceivedAt
}
