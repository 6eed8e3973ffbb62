// Package jsonstore implements the event store and feast calendar contracts
// over JSON snapshot files, for local runs and fixtures. The production
// collaborators sit behind the same interfaces.
package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// Store serves immutable event and feast snapshots loaded at open time.
// Safe for concurrent reads; never mutated after Open.
type Store struct {
	events map[domain.EventType][]domain.TemporalEvent
	feasts []domain.FeastInstance
}

// Open loads both snapshot files. Failures surface as
// domain.ErrUpstreamUnavailable: the engine treats a broken store like any
// other unavailable collaborator.
func Open(eventsPath, feastsPath string) (*Store, error) {
	var events []domain.TemporalEvent
	if err := readJSON(eventsPath, &events); err != nil {
		return nil, fmt.Errorf("%w: events snapshot %s: %v", domain.ErrUpstreamUnavailable, eventsPath, err)
	}
	var feasts []domain.FeastInstance
	if err := readJSON(feastsPath, &feasts); err != nil {
		return nil, fmt.Errorf("%w: feasts snapshot %s: %v", domain.ErrUpstreamUnavailable, feastsPath, err)
	}

	byType := make(map[domain.EventType][]domain.TemporalEvent)
	for _, ev := range events {
		byType[ev.Type] = append(byType[ev.Type], ev)
	}
	for _, evs := range byType {
		sort.Slice(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
	}
	sort.Slice(feasts, func(i, j int) bool { return feasts[i].StartDate.Before(feasts[j].StartDate) })

	return &Store{events: byType, feasts: feasts}, nil
}

// QueryEvents returns events of one type within [from, to), sorted by
// timestamp ascending.
func (s *Store) QueryEvents(_ context.Context, eventType domain.EventType, from, to time.Time) ([]domain.TemporalEvent, error) {
	events := s.events[eventType]
	lo := sort.Search(len(events), func(i int) bool { return !events[i].Timestamp.Before(from) })
	hi := sort.Search(len(events), func(i int) bool { return !events[i].Timestamp.Before(to) })
	if lo >= hi {
		return nil, nil
	}
	out := make([]domain.TemporalEvent, hi-lo)
	copy(out, events[lo:hi])
	return out, nil
}

// ListFeasts returns feast instances matching the type filter within the
// year range, sorted by start date. An empty filter matches all types.
func (s *Store) ListFeasts(_ context.Context, feastTypes []string, years domain.YearRange) ([]domain.FeastInstance, error) {
	wanted := make(map[string]bool, len(feastTypes))
	for _, t := range feastTypes {
		wanted[t] = true
	}

	var out []domain.FeastInstance
	for _, f := range s.feasts {
		if f.Year < years.From || f.Year > years.To {
			continue
		}
		if len(wanted) > 0 && !wanted[f.FeastType] {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
