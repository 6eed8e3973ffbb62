package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// Match is one event matched to an anchor interval.
type Match struct {
	Event     domain.TemporalEvent
	DeltaDays int // signed, from the nearest anchor boundary; 0 inside the interval
}

// Correlator indexes immutable event slices per type for windowed range
// queries. Events must arrive sorted by timestamp ascending (the event
// store contract); the index is a snapshot and never mutated afterwards.
type Correlator struct {
	byType map[domain.EventType][]domain.TemporalEvent
}

// NewCorrelator builds the per-type index from store snapshots.
func NewCorrelator(events map[domain.EventType][]domain.TemporalEvent) *Correlator {
	byType := make(map[domain.EventType][]domain.TemporalEvent, len(events))
	for t, evs := range events {
		byType[t] = evs
	}
	return &Correlator{byType: byType}
}

// EventCount returns the number of indexed events of one type.
func (c *Correlator) EventCount(t domain.EventType) int {
	return len(c.byType[t])
}

// CountByYear tallies indexed events of one type per calendar year of the
// range. Years with no events still appear with a zero count so the null
// model preserves the year span.
func (c *Correlator) CountByYear(t domain.EventType, years domain.YearRange) map[int]int {
	counts := make(map[int]int, years.Years())
	for y := years.From; y <= years.To; y++ {
		counts[y] = 0
	}
	for _, ev := range c.byType[t] {
		y := ev.Timestamp.UTC().Year()
		if y >= years.From && y <= years.To {
			counts[y]++
		}
	}
	return counts
}

// Query returns every event of eventType within [anchor.Start − windowDays,
// anchor.End + windowDays], annotated with delta days. Binary search keeps
// the cost at O(log n + k); the matrix builder issues one query per
// (feast instance, event type) pair, potentially thousands per request.
// Multiple matches per anchor are all retained; multiplicity feeds the
// strength computation downstream.
func (c *Correlator) Query(anchor domain.Interval, windowDays int, eventType domain.EventType) ([]Match, error) {
	if windowDays < 0 {
		return nil, fmt.Errorf("%w: window_days must be >= 0, got %d", domain.ErrInvalidRange, windowDays)
	}
	if anchor.End.Before(anchor.Start) {
		return nil, fmt.Errorf("%w: anchor end precedes start", domain.ErrInvalidRange)
	}

	events := c.byType[eventType]
	if len(events) == 0 {
		return nil, nil
	}

	// Half-open [windowStart, windowEnd): the trailing day is included in
	// full regardless of event time-of-day.
	windowStart := anchor.Start.AddDate(0, 0, -windowDays)
	windowEnd := anchor.End.AddDate(0, 0, windowDays+1)

	lo := sort.Search(len(events), func(i int) bool {
		return !events[i].Timestamp.Before(windowStart)
	})

	var matches []Match
	for i := lo; i < len(events) && events[i].Timestamp.Before(windowEnd); i++ {
		matches = append(matches, Match{
			Event:     events[i],
			DeltaDays: deltaDays(events[i].Timestamp, anchor),
		})
	}
	return matches, nil
}

// deltaDays measures whole days from the nearest anchor boundary, signed.
// Events on a day inside the anchor interval score zero.
func deltaDays(ts time.Time, anchor domain.Interval) int {
	day := midnightUTC(ts)
	start := midnightUTC(anchor.Start)
	end := midnightUTC(anchor.End)

	switch {
	case day.Before(start):
		return -wholeDays(day, start)
	case day.After(end):
		return wholeDays(end, day)
	default:
		return 0
	}
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// wholeDays counts calendar days from a to b, both at UTC midnight, a ≤ b.
func wholeDays(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
