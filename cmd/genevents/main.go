// Command genevents generates synthetic event and feast snapshot fixtures
// for local runs and the test suites. Generation is seeded, so fixtures are
// reproducible.
//
// Usage:
//
//	go run ./cmd/genevents \
//	  -out data \
//	  -from-year 2015 -to-year 2026 \
//	  -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// annualRates approximate real-world occurrence frequencies per event type.
var annualRates = map[domain.EventType]int{
	domain.EventEarthquake:  120, // magnitude ≥ 5 worldwide, roughly
	domain.EventVolcanic:    30,
	domain.EventNEOApproach: 60,
	domain.EventSolar:       45,
}

type feastDef struct {
	feastType string
	name      string
	month     time.Month
	day       int
	spanDays  int // 1 for single-day feasts
	drift     int // max day-of-year jitter across years, models movable feasts
}

var feastDefs = []feastDef{
	{feastType: "passover", name: "Passover", month: time.April, day: 15, spanDays: 8, drift: 20},
	{feastType: "easter", name: "Easter", month: time.April, day: 9, spanDays: 1, drift: 25},
	{feastType: "yom_kippur", name: "Yom Kippur", month: time.September, day: 28, spanDays: 1, drift: 18},
	{feastType: "sukkot", name: "Sukkot", month: time.October, day: 3, spanDays: 7, drift: 18},
	{feastType: "epiphany", name: "Epiphany", month: time.January, day: 6, spanDays: 1, drift: 0},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data", "output directory for events.json and feasts.json")
	fromYear := flag.Int("from-year", 2015, "first calendar year")
	toYear := flag.Int("to-year", 2026, "last calendar year")
	seed := flag.Int64("seed", 42, "RNG seed")
	flag.Parse()

	if *toYear < *fromYear {
		return fmt.Errorf("-to-year %d precedes -from-year %d", *toYear, *fromYear)
	}

	rng := rand.New(rand.NewSource(*seed)) //nolint:gosec // fixture generation

	var events []domain.TemporalEvent
	for _, t := range domain.KnownEventTypes() {
		for y := *fromYear; y <= *toYear; y++ {
			events = append(events, generateYear(rng, t, y)...)
		}
		log.Printf("%s: %d events/year nominal", t, annualRates[t])
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	var feasts []domain.FeastInstance
	for _, def := range feastDefs {
		for y := *fromYear; y <= *toYear; y++ {
			feasts = append(feasts, generateFeast(rng, def, y))
		}
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(*out, "events.json"), events); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(*out, "feasts.json"), feasts); err != nil {
		return err
	}

	log.Printf("wrote %d events, %d feast instances to %s", len(events), len(feasts), *out)
	return nil
}

func generateYear(rng *rand.Rand, t domain.EventType, year int) []domain.TemporalEvent {
	yearStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	yearLen := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Sub(yearStart)

	// Poisson-ish jitter around the nominal rate.
	n := annualRates[t] + rng.Intn(21) - 10

	events := make([]domain.TemporalEvent, 0, n)
	for i := 0; i < n; i++ {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			// rand.Rand never fails as a reader.
			panic(err)
		}
		ev := domain.TemporalEvent{
			ID:        id.String(),
			Type:      t,
			Timestamp: yearStart.Add(time.Duration(rng.Int63n(int64(yearLen)))),
			Magnitude: magnitudeFor(rng, t),
		}
		if t == domain.EventEarthquake || t == domain.EventVolcanic {
			ev.Location = &domain.Geo{
				Lat: rng.Float64()*180 - 90,
				Lon: rng.Float64()*360 - 180,
			}
		}
		events = append(events, ev)
	}
	return events
}

func magnitudeFor(rng *rand.Rand, t domain.EventType) float64 {
	switch t {
	case domain.EventEarthquake:
		return 5 + rng.Float64()*4 // moment magnitude
	case domain.EventVolcanic:
		return float64(rng.Intn(6)) // VEI
	case domain.EventNEOApproach:
		return rng.Float64() * 0.05 // miss distance, AU
	case domain.EventSolar:
		return 1 + rng.Float64()*8 // X-ray class numeric
	default:
		return 0
	}
}

func generateFeast(rng *rand.Rand, def feastDef, year int) domain.FeastInstance {
	start := time.Date(year, def.month, def.day, 0, 0, 0, 0, time.UTC)
	if def.drift > 0 {
		start = start.AddDate(0, 0, rng.Intn(2*def.drift+1)-def.drift)
	}
	return domain.FeastInstance{
		FeastType: def.feastType,
		Name:      def.name,
		Year:      year,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, def.spanDays-1),
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
