package domain

import (
	"context"
	"time"
)

// EventStore is the external collaborator owning ingested temporal events.
// QueryEvents returns events of one type within [from, to), sorted by
// timestamp ascending.
type EventStore interface {
	QueryEvents(ctx context.Context, eventType EventType, from, to time.Time) ([]TemporalEvent, error)
}

// FeastCalendar is the external collaborator supplying resolved feast
// instances. An empty feastTypes filter means all types. Results cover every
// year of the range that has instances; feast types with no instances in
// range are simply absent.
type FeastCalendar interface {
	ListFeasts(ctx context.Context, feastTypes []string, years YearRange) ([]FeastInstance, error)
}
