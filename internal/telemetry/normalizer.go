package telemetry

import (
	"encoding/json"
	"fmt"

	"axle-monitor/core/internal/domain"
)

// System-state slots. Positions are fixed by the device firmware.
const (
	stateDoor = iota
	statePower
	stateSMPS
	stateBattery
	stateAmbient1
	stateAmbient2
	stateAmbient3
	stateAmbient4
	statePanelBox
	statePCBBox
	stateBatteryTemp
)

// Normalize validates one raw frame and converts it into its canonical form.
// A frame without a device key, train id or a decodable temperature_arr is
// rejected with domain.ErrMalformedFrame. Individual malformed axle rows
// and a missing date/time are not errors: rows are kept (and counted in
// SkippedRows) and the date/time parts are left nil.
func Normalize(raw domain.RawFrame) (*domain.NormalizedFrame, error) {
	if raw.DeviceKey == "" {
		return nil, fmt.Errorf("%w: missing device key", domain.ErrMalformedFrame)
	}
	if raw.TrainID == "" {
		return nil, fmt.Errorf("%w: frame %d has no train id", domain.ErrMalformedFrame, raw.ID)
	}

	rows, err := decodeRows(raw.AxleRows)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %v", domain.ErrMalformedFrame, raw.ID, err)
	}

	nf := &domain.NormalizedFrame{
		ID:           raw.ID,
		DeviceKey:    raw.DeviceKey,
		TrainID:      raw.TrainID,
		ReceivedAt:   raw.ReceivedAt,
		Rows:         rows,
		SensorStatus: decodeStatusFlags(raw.SensorStatus),
		SystemState:  decodeSystemState(raw.SystemState),
		DateTime:     decodeDateTime(raw.DT),
		Direction:    domain.DirectionUnknown,
	}

	for _, row := range rows {
		reading, err := row.Reading()
		if err != nil {
			nf.SkippedRows++
			continue
		}
		nf.Readings = append(nf.Readings, reading)
	}
	if len(rows) > 0 {
		nf.Direction = rows[0].Direction()
	}

	return nf, nil
}

func decodeRows(raw json.RawMessage) ([]domain.AxleRow, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("temperature_arr is missing")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("temperature_arr is not an array: %w", err)
	}

	rows := make([]domain.AxleRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, decodeRow(item))
	}
	return rows, nil
}

// decodeRow returns an empty row for anything that is not an array of
// numbers, which makes it fail the width check downstream.
func decodeRow(raw json.RawMessage) domain.AxleRow {
	var slots []*float64
	if err := json.Unmarshal(raw, &slots); err != nil {
		return domain.AxleRow{}
	}
	row := make(domain.AxleRow, 0, len(slots))
	for _, s := range slots {
		if s == nil {
			return domain.AxleRow{}
		}
		row = append(row, *s)
	}
	return row
}

func decodeStatusFlags(raw json.RawMessage) []int {
	var flags []float64
	if len(raw) == 0 || json.Unmarshal(raw, &flags) != nil {
		return []int{}
	}
	out := make([]int, len(flags))
	for i, f := range flags {
		out[i] = int(f)
	}
	return out
}

// DecodeSystemState decodes a raw system-state vector, or returns nil when
// the frame did not carry one.
func DecodeSystemState(raw json.RawMessage) *domain.SystemState {
	return decodeSystemState(raw)
}

func decodeSystemState(raw json.RawMessage) *domain.SystemState {
	var slots []*float64
	if len(raw) == 0 || json.Unmarshal(raw, &slots) != nil || len(slots) == 0 {
		return nil
	}

	at := func(i int) *float64 {
		if i < len(slots) {
			return slots[i]
		}
		return nil
	}
	flag := func(i int) *bool {
		v := at(i)
		if v == nil {
			return nil
		}
		on := *v != 0
		return &on
	}

	return &domain.SystemState{
		PanelDoorOpen:  flag(stateDoor),
		MainPowerOn:    flag(statePower),
		SMPSOn:         flag(stateSMPS),
		BatteryPercent: at(stateBattery),
		AmbientTemps:   [4]*float64{at(stateAmbient1), at(stateAmbient2), at(stateAmbient3), at(stateAmbient4)},
		PanelBoxTemp:   at(statePanelBox),
		PCBBoxTemp:     at(statePCBBox),
		BatteryTemp:    at(stateBatteryTemp),
	}
}

// decodeDateTime reads DT = [[h, m, s], [d, m, y]].
func decodeDateTime(raw json.RawMessage) domain.DeviceDateTime {
	var dt [][]*float64
	if len(raw) == 0 || json.Unmarshal(raw, &dt) != nil {
		return domain.DeviceDateTime{}
	}

	var out domain.DeviceDateTime
	if len(dt) > 0 {
		if h, m, s, ok := triplet(dt[0]); ok {
			v := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
			out.Time = &v
		}
	}
	if len(dt) > 1 {
		if d, m, y, ok := triplet(dt[1]); ok {
			v := fmt.Sprintf("%02d/%02d/%d", d, m, y)
			out.Date = &v
		}
	}
	return out
}

func triplet(parts []*float64) (int, int, int, bool) {
	if len(parts) < 3 || parts[0] == nil || parts[1] == nil || parts[2] == nil {
		return 0, 0, 0, false
	}
	return int(*parts[0]), int(*parts[1]), int(*parts[2]), true
}
