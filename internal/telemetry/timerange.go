package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"axle-monitor/core/internal/domain"
)

// TimeRange bounds frame ingestion time, inclusive. The zero value means
// no filter.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

const PeriodCustom = "custom"

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimeRange turns request parameters into a range. period is either a
// positive number of days counted back from now, or "custom" with explicit
// start and end dates. Explicit dates that do not parse are rejected with
// domain.ErrInvalidDateRange. A date-only end covers the whole day.
func ParseTimeRange(period, start, end string, now time.Time) (TimeRange, error) {
	period = strings.TrimSpace(period)
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if period == "" && start == "" && end == "" {
		return TimeRange{}, nil
	}

	if period != "" && period != PeriodCustom {
		days, err := strconv.Atoi(period)
		if err != nil || days <= 0 {
			return TimeRange{}, fmt.Errorf("%w: unknown period %q", domain.ErrInvalidDateRange, period)
		}
		return TimeRange{Start: now.AddDate(0, 0, -days), End: now}, nil
	}

	if start == "" || end == "" {
		return TimeRange{}, fmt.Errorf("%w: custom range needs both startDate and endDate", domain.ErrInvalidDateRange)
	}

	from, _, err := parseDate(start)
	if err != nil {
		return TimeRange{}, err
	}
	to, dateOnly, err := parseDate(end)
	if err != nil {
		return TimeRange{}, err
	}
	if dateOnly {
		to = to.Add(24*time.Hour - time.Millisecond)
	}
	if to.Before(from) {
		return TimeRange{}, fmt.Errorf("%w: endDate %s is before startDate %s", domain.ErrInvalidDateRange, end, start)
	}

	return TimeRange{Start: from, End: to}, nil
}

func parseDate(s string) (time.Time, bool, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout == "2006-01-02", nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: cannot parse date %q", domain.ErrInvalidDateRange, s)
}
