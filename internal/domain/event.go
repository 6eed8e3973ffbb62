package domain

import "time"

// EventType identifies one class of natural event tracked by the dashboard.
type EventType string

const (
	EventEarthquake  EventType = "earthquake"
	EventVolcanic    EventType = "volcanic"
	EventNEOApproach EventType = "neo_approach"
	EventSolar       EventType = "solar_event"
)

// KnownEventTypes lists every event type in canonical order.
func KnownEventTypes() []EventType {
	return []EventType{EventEarthquake, EventVolcanic, EventNEOApproach, EventSolar}
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TemporalEvent is one time-stamped natural event. Immutable once ingested;
// the external event store owns the canonical copy.
type TemporalEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Magnitude float64   `json:"magnitude"` // type-dependent scale
	Location  *Geo      `json:"location,omitempty"`
}

// FeastInstance is one calendar occurrence of a recurring feast, with
// Gregorian dates resolved by the calendar collaborator. EndDate equals
// StartDate for single-day feasts.
type FeastInstance struct {
	FeastType string    `json:"feast_type"`
	Name      string    `json:"name"`
	Year      int       `json:"year"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Interval returns the feast's anchor interval.
func (f FeastInstance) Interval() Interval {
	return Interval{Start: f.StartDate, End: f.EndDate}
}

// Interval is a closed date interval, both bounds at UTC midnight.
type Interval struct {
	Start time.Time
	End   time.Time
}

// YearRange is an inclusive range of calendar years.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Years returns the number of calendar years covered, 0 if inverted.
func (r YearRange) Years() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// IngestionNotice is published by the collector family whenever new data for
// an event type lands in the store. The result cache subscribes to these to
// invalidate affected entries.
type IngestionNotice struct {
	EventType EventType `json:"event_type"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}
