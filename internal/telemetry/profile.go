package telemetry

import (
	"fmt"
	"sort"

	"axle-monitor/core/internal/domain"
)

// AxleProfile is the per-axle temperature breakdown shown for one train.
// Each group is sorted hottest first.
type AxleProfile struct {
	Label          string          `json:"label"`
	LeftAxleBoxes  []float64       `json:"leftAxleBoxes"`
	RightAxleBoxes []float64       `json:"rightAxleBoxes"`
	LeftWheels     []float64       `json:"leftWheelBoxes"`
	RightWheels    []float64       `json:"rightWheelBoxes"`
	LeftBrakes     []float64       `json:"leftBrakeBoxes"`
	RightBrakes    []float64       `json:"rightBrakeBoxes"`
	Differences    SideDifferences `json:"differences"`
}

// SideDifferences are left-minus-right of each group's hottest reading.
type SideDifferences struct {
	AxleBox float64 `json:"axleBoxDifference"`
	Wheel   float64 `json:"wheelBoxDifference"`
	Brake   float64 `json:"brakeBoxDifference"`
}

// Profiles builds axle profiles for rows, labelling them "Axle n" from
// firstOrdinal. Malformed rows are skipped and counted.
func Profiles(rows []domain.AxleRow, firstOrdinal int) ([]AxleProfile, int) {
	var (
		out     []AxleProfile
		skipped int
	)
	for i, row := range rows {
		if len(row) != domain.AxleRowWidth {
			skipped++
			continue
		}

		p := AxleProfile{Label: fmt.Sprintf("Axle %d", firstOrdinal+i)}
		for _, span := range domain.SensorLayout {
			vals := append([]float64(nil), row[span.Start:span.End]...)
			sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
			switch {
			case span.Group == domain.GroupAxleBox && span.Side == domain.SideLeft:
				p.LeftAxleBoxes = vals
			case span.Group == domain.GroupAxleBox:
				p.RightAxleBoxes = vals
			case span.Group == domain.GroupWheel && span.Side == domain.SideLeft:
				p.LeftWheels = vals
			case span.Group == domain.GroupWheel:
				p.RightWheels = vals
			case span.Side == domain.SideLeft:
				p.LeftBrakes = vals
			default:
				p.RightBrakes = vals
			}
		}
		p.Differences = SideDifferences{
			AxleBox: p.LeftAxleBoxes[0] - p.RightAxleBoxes[0],
			Wheel:   p.LeftWheels[0] - p.RightWheels[0],
			Brake:   p.LeftBrakes[0] - p.RightBrakes[0],
		}
		out = append(out, p)
	}
	return out, skipped
}
