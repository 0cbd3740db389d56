package telemetry

import "axle-monitor/core/internal/domain"

const (
	locomotiveAxles = 6
	axlesPerCoach   = 4
)

// CoachCount is floor((totalAxles-6)/4), never negative.
func CoachCount(totalAxles int) int {
	if totalAxles < locomotiveAxles {
		return 0
	}
	return (totalAxles - locomotiveAxles) / axlesPerCoach
}

// CoachNumber maps the 1-based ordinal of an axle within its train to a
// coach. The first six axles belong to the locomotive (coach 0).
func CoachNumber(ordinal int) int {
	if ordinal <= locomotiveAxles {
		return domain.LocomotiveCoach
	}
	return (ordinal - locomotiveAxles + axlesPerCoach - 1) / axlesPerCoach
}

// Aggregator folds normalized frames into per-train summaries. It is not
// safe for concurrent use; each request builds its own.
type Aggregator struct {
	order  []string
	trains map[string]*domain.TrainSummary
}

func NewAggregator() *Aggregator {
	return &Aggregator{trains: make(map[string]*domain.TrainSummary)}
}

// AxlesSeen returns how many axles of the train have been folded so far.
func (a *Aggregator) AxlesSeen(trainID string) int {
	if s, ok := a.trains[trainID]; ok {
		return s.TotalAxles
	}
	return 0
}

// Fold adds one frame. Axle and warning totals accumulate; direction and
// ambient temperature take the latest frame that carries them, and the
// date/time is carried forward from the latest frame that has one.
func (a *Aggregator) Fold(f *domain.NormalizedFrame, warnings int, device domain.DeviceContext) {
	s, ok := a.trains[f.TrainID]
	if !ok {
		s = &domain.TrainSummary{
			TrainID:         f.TrainID,
			Direction:       domain.DirectionUnknown,
			Device:          device,
			FirstReceivedAt: f.ReceivedAt,
		}
		a.trains[f.TrainID] = s
		a.order = append(a.order, f.TrainID)
	}

	s.TotalAxles += len(f.Rows)
	s.TotalCoaches = CoachCount(s.TotalAxles)
	s.WarningCount += warnings
	s.LastReceivedAt = f.ReceivedAt

	if f.Direction != domain.DirectionUnknown {
		s.Direction = f.Direction
	}
	if amb := f.SystemState.Ambient(); amb != nil {
		v := *amb
		s.AmbientTemperature = &v
	}
	if f.DateTime.Time != nil {
		s.LastKnownDateTime.Time = f.DateTime.Time
	}
	if f.DateTime.Date != nil {
		s.LastKnownDateTime.Date = f.DateTime.Date
	}
}

// Summaries returns the trains in order of first appearance.
func (a *Aggregator) Summaries() []domain.TrainSummary {
	out := make([]domain.TrainSummary, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.trains[id])
	}
	return out
}

// Aggregate is the one-shot form of Fold over frames that carry no warning
// counts or device context.
func Aggregate(frames []*domain.NormalizedFrame) []domain.TrainSummary {
	a := NewAggregator()
	for _, f := range frames {
		a.Fold(f, 0, domain.DeviceContext{DeviceKey: f.DeviceKey})
	}
	return a.Summaries()
}
