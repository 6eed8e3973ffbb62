// Command validatefixtures sanity-checks event and feast snapshot files
// before they are pointed at a running service: timestamp ordering,
// coordinate bounds, feast date coherence, and per-type coverage.
//
// Usage:
//
//	go run ./cmd/validatefixtures -dir data
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/feast-correlation/internal/adapter/jsonstore"
	"github.com/couchcryptid/feast-correlation/internal/domain"
)

func main() {
	dir := flag.String("dir", "data", "directory containing events.json and feasts.json")
	flag.Parse()

	if err := run(*dir); err != nil {
		log.Fatal(err)
	}
}

func run(dir string) error {
	store, err := jsonstore.Open(
		filepath.Join(dir, "events.json"),
		filepath.Join(dir, "feasts.json"),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	problems := 0
	wide := domain.YearRange{From: 1900, To: 2200}

	for _, t := range domain.KnownEventTypes() {
		events, err := store.QueryEvents(ctx, t,
			time.Date(wide.From, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(wide.To, 1, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return err
		}

		var prev time.Time
		for _, ev := range events {
			if ev.ID == "" {
				problems++
				fmt.Printf("FAIL %s: event with empty ID at %s\n", t, ev.Timestamp)
			}
			if ev.Timestamp.Before(prev) {
				problems++
				fmt.Printf("FAIL %s: timestamps out of order at %s\n", t, ev.Timestamp)
			}
			prev = ev.Timestamp
			if ev.Location != nil {
				if ev.Location.Lat < -90 || ev.Location.Lat > 90 || ev.Location.Lon < -180 || ev.Location.Lon > 180 {
					problems++
					fmt.Printf("FAIL %s: event %s has out-of-range coordinates (%.2f, %.2f)\n",
						t, ev.ID, ev.Location.Lat, ev.Location.Lon)
				}
			}
		}
		fmt.Printf("OK   %s: %d events\n", t, len(events))
	}

	feasts, err := store.ListFeasts(ctx, nil, wide)
	if err != nil {
		return err
	}
	perType := make(map[string]int)
	for _, f := range feasts {
		perType[f.FeastType]++
		if f.EndDate.Before(f.StartDate) {
			problems++
			fmt.Printf("FAIL feast %s %d: end date precedes start date\n", f.FeastType, f.Year)
		}
		if f.StartDate.UTC().Year() != f.Year && f.EndDate.UTC().Year() != f.Year {
			problems++
			fmt.Printf("FAIL feast %s %d: dates outside declared year\n", f.FeastType, f.Year)
		}
	}
	for ft, n := range perType {
		fmt.Printf("OK   feast %s: %d instances\n", ft, n)
	}

	if problems > 0 {
		fmt.Printf("\n%d problem(s) found\n", problems)
		os.Exit(1)
	}
	fmt.Println("\nall fixtures valid")
	return nil
}
