package metroapi

import (
	"time"

	"github.com/SaidinWoT/timespan"
)

// window is a daily service window, in minutes since midnight. Both ends are
// inclusive.
type window struct {
	start int
	end   int
}

// ServiceHours describes when the network runs trains
type ServiceHours struct {
	Location *time.Location
	Weekday  window
	Saturday window
	Sunday   window
}

// DefaultServiceHours returns the regular service hours of the network in the
// given location: weekdays 06:00-23:00, Saturdays 06:30-23:00 and Sundays
// 07:30-23:00
func DefaultServiceHours(loc *time.Location) *ServiceHours {
	return &ServiceHours{
		Location: loc,
		Weekday:  window{start: 6 * 60, end: 23 * 60},
		Saturday: window{start: 6*60 + 30, end: 23 * 60},
		Sunday:   window{start: 7*60 + 30, end: 23 * 60},
	}
}

// Span returns the service span of the day containing t
func (h *ServiceHours) Span(t time.Time) timespan.Span {
	t = t.In(h.Location)
	w := h.Weekday
	switch t.Weekday() {
	case time.Saturday:
		w = h.Saturday
	case time.Sunday:
		w = h.Sunday
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), w.start/60, w.start%60, 0, 0, h.Location)
	end := time.Date(t.Year(), t.Month(), t.Day(), w.end/60, w.end%60, 0, 0, h.Location)
	return timespan.New(start, end.Sub(start))
}

// InService returns whether the network is running at t. Comparison is done
// at minute granularity, so 23:00:59 is still in service.
func (h *ServiceHours) InService(t time.Time) bool {
	t = t.In(h.Location).Truncate(time.Minute)
	span := h.Span(t)
	return !t.Before(span.Start()) && !t.After(span.End())
}
