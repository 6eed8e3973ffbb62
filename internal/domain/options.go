package domain

import "fmt"

// Defaults for recognized analysis options.
const (
	DefaultWindowDays      = 7
	DefaultIterations      = 1000
	DefaultConfidenceLevel = 95
	DefaultBaselineYears   = 5
	DefaultDecay           = 0.85
	DefaultEpsilon         = 3.0
	DefaultMinPoints       = 4
)

// ForecastHorizons lists the supported horizons, in days.
var ForecastHorizons = []int{7, 30, 90, 180, 365}

// Options carries the recognized per-query analysis settings. Unknown
// options cannot be expressed: invalid configurations fail at the boundary
// via Validate, not deep inside computation.
type Options struct {
	WindowDays      int     `json:"window_days"`
	Iterations      int     `json:"monte_carlo_iterations"`
	ConfidenceLevel int     `json:"confidence_level"` // 95 or 99
	BaselineYears   int     `json:"baseline_years"`
	Decay           float64 `json:"decay"`
	Epsilon         float64 `json:"epsilon"`
	MinPoints       int     `json:"min_points"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		WindowDays:      DefaultWindowDays,
		Iterations:      DefaultIterations,
		ConfidenceLevel: DefaultConfidenceLevel,
		BaselineYears:   DefaultBaselineYears,
		Decay:           DefaultDecay,
		Epsilon:         DefaultEpsilon,
		MinPoints:       DefaultMinPoints,
	}
}

// Validate rejects malformed options with ErrInvalidRange.
func (o Options) Validate() error {
	if o.WindowDays < 0 {
		return fmt.Errorf("%w: window_days must be >= 0, got %d", ErrInvalidRange, o.WindowDays)
	}
	if o.Iterations < 1 {
		return fmt.Errorf("%w: monte_carlo_iterations must be >= 1, got %d", ErrInvalidRange, o.Iterations)
	}
	if o.ConfidenceLevel != 95 && o.ConfidenceLevel != 99 {
		return fmt.Errorf("%w: confidence_level must be 95 or 99, got %d", ErrInvalidRange, o.ConfidenceLevel)
	}
	if o.BaselineYears < 1 {
		return fmt.Errorf("%w: baseline_years must be >= 1, got %d", ErrInvalidRange, o.BaselineYears)
	}
	if o.Decay <= 0 || o.Decay > 1 {
		return fmt.Errorf("%w: decay must be in (0,1], got %g", ErrInvalidRange, o.Decay)
	}
	if o.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be > 0, got %g", ErrInvalidRange, o.Epsilon)
	}
	if o.MinPoints < 1 {
		return fmt.Errorf("%w: min_points must be >= 1, got %d", ErrInvalidRange, o.MinPoints)
	}
	return nil
}

// Query selects the data under analysis: which feast types, which event
// types, and which years. Empty filters mean all known types.
type Query struct {
	FeastTypes []string    `json:"feast_types"`
	EventTypes []EventType `json:"event_types"`
	Years      YearRange   `json:"years"`
	Options    Options     `json:"options"`
}

// Validate rejects malformed queries with ErrInvalidRange.
func (q Query) Validate() error {
	if q.Years.From == 0 || q.Years.To == 0 {
		return fmt.Errorf("%w: year range is required", ErrInvalidRange)
	}
	if q.Years.To < q.Years.From {
		return fmt.Errorf("%w: year range %d..%d is inverted", ErrInvalidRange, q.Years.From, q.Years.To)
	}
	for _, t := range q.EventTypes {
		if _, err := ParseEventType(string(t)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
	}
	return q.Options.Validate()
}

// ForecastQuery selects upcoming feasts and horizons to project.
type ForecastQuery struct {
	Horizons   []int       `json:"horizons"`
	FeastTypes []string    `json:"feast_types"`
	EventTypes []EventType `json:"event_types"`
	// HistoryYears is the span of past calendar data the projection draws
	// on, ending at the current year.
	HistoryYears int     `json:"history_years"`
	Options      Options `json:"options"`
}

// Validate rejects malformed forecast queries with ErrInvalidRange.
func (q ForecastQuery) Validate() error {
	if len(q.Horizons) == 0 {
		return fmt.Errorf("%w: at least one horizon is required", ErrInvalidRange)
	}
	for _, h := range q.Horizons {
		if !validHorizon(h) {
			return fmt.Errorf("%w: horizon %d not in %v", ErrInvalidRange, h, ForecastHorizons)
		}
	}
	if q.HistoryYears < 1 {
		return fmt.Errorf("%w: history_years must be >= 1, got %d", ErrInvalidRange, q.HistoryYears)
	}
	for _, t := range q.EventTypes {
		if _, err := ParseEventType(string(t)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
	}
	return q.Options.Validate()
}

func validHorizon(h int) bool {
	for _, known := range ForecastHorizons {
		if h == known {
			return true
		}
	}
	return false
}
