package telemetry

import (
	"time"

	"axle-monitor/core/internal/domain"
)

// ClassifyContext carries what the classifier attaches to every event.
type ClassifyContext struct {
	TrainID    string
	Device     domain.DeviceContext
	DateTime   domain.DeviceDateTime
	ReceivedAt time.Time

	// AxleOffset is the number of axles of the same train already seen in
	// earlier frames; it positions rows for coach numbering.
	AxleOffset int
}

type Classification struct {
	Warnings    []domain.WarningEvent
	SkippedRows int
}

// AxleBoxSeverity classifies an axle-box reading. The highest tier whose
// threshold is reached wins: hot, then warm, then differential.
func AxleBoxSeverity(temp float64, th domain.DeviceThresholds) (domain.Severity, bool) {
	switch {
	case temp >= th.Hot:
		return domain.SeverityHot, true
	case temp >= th.Warm:
		return domain.SeverityWarm, true
	case temp >= th.Differential:
		return domain.SeverityDifferential, true
	}
	return "", false
}

// WheelBrakeSeverity is the single-tier check used for wheel and brake
// sensors.
func WheelBrakeSeverity(temp float64, th domain.DeviceThresholds) (domain.Severity, bool) {
	if temp >= th.Differential {
		return domain.SeverityDifferential, true
	}
	return "", false
}

// Classify scans every well-formed row across the six sensor groups and
// emits one event per reading that reaches a tier. Rows of the wrong width
// are skipped and counted; they still occupy an axle position.
func Classify(rows []domain.AxleRow, th domain.DeviceThresholds, cc ClassifyContext) Classification {
	var out Classification

	for i, row := range rows {
		if len(row) != domain.AxleRowWidth {
			out.SkippedRows++
			continue
		}

		axleNo := int(row[domain.SlotAxleNumber])
		coachNo := CoachNumber(cc.AxleOffset + i + 1)
		dir := row.Direction()

		for _, span := range domain.SensorLayout {
			severityOf := WheelBrakeSeverity
			if span.Group == domain.GroupAxleBox {
				severityOf = AxleBoxSeverity
			}

			for slot := span.Start; slot < span.End; slot++ {
				temp := row[slot]
				sev, ok := severityOf(temp, th)
				if !ok {
					continue
				}
				out.Warnings = append(out.Warnings, domain.WarningEvent{
					SensorGroup: span.Group,
					Side:        span.Side,
					SensorIndex: slot - span.Start + 1,
					Temperature: temp,
					Severity:    sev,
					AxleNumber:  axleNo,
					CoachNumber: coachNo,
					TrainID:     cc.TrainID,
					Direction:   dir,
					Device:      cc.Device,
					DateTime:    cc.DateTime,
					ReceivedAt:  cc.ReceivedAt,
				})
			}
		}
	}

	return out
}

// ClassifyFrame classifies a normalized frame.
func ClassifyFrame(f *domain.NormalizedFrame, th domain.DeviceThresholds, device domain.DeviceContext, axleOffset int) Classification {
	return Classify(f.Rows, th, ClassifyContext{
		TrainID:    f.TrainID,
		Device:     device,
		DateTime:   f.DateTime,
		ReceivedAt: f.ReceivedAt,
		AxleOffset: axleOffset,
	})
}
