package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// parseQuery reads the shared query parameters. Parsing failures reject the
// request at the boundary with ErrInvalidRange, before any computation.
func (s *Server) parseQuery(r *http.Request) (domain.Query, error) {
	q := domain.Query{
		FeastTypes: splitParam(r, "feast_types"),
		Options:    s.defaultOptions(),
	}

	for _, raw := range splitParam(r, "event_types") {
		t, err := domain.ParseEventType(raw)
		if err != nil {
			return q, fmt.Errorf("%w: %v", domain.ErrInvalidRange, err)
		}
		q.EventTypes = append(q.EventTypes, t)
	}

	var err error
	if q.Years.From, err = intParam(r, "from_year", 0); err != nil {
		return q, err
	}
	if q.Years.To, err = intParam(r, "to_year", 0); err != nil {
		return q, err
	}
	if err := s.parseOptions(r, &q.Options); err != nil {
		return q, err
	}
	return q, q.Validate()
}

// parseForecastQuery reads forecast parameters; horizons default to the
// full supported list.
func (s *Server) parseForecastQuery(r *http.Request) (domain.ForecastQuery, error) {
	q := domain.ForecastQuery{
		FeastTypes: splitParam(r, "feast_types"),
		Options:    s.defaultOptions(),
	}

	for _, raw := range splitParam(r, "event_types") {
		t, err := domain.ParseEventType(raw)
		if err != nil {
			return q, fmt.Errorf("%w: %v", domain.ErrInvalidRange, err)
		}
		q.EventTypes = append(q.EventTypes, t)
	}

	horizons := splitParam(r, "horizons")
	if len(horizons) == 0 {
		q.Horizons = append([]int(nil), domain.ForecastHorizons...)
	}
	for _, raw := range horizons {
		h, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("%w: horizon %q is not a number", domain.ErrInvalidRange, raw)
		}
		q.Horizons = append(q.Horizons, h)
	}

	var err error
	if q.HistoryYears, err = intParam(r, "history_years", 0); err != nil {
		return q, err
	}
	if q.HistoryYears == 0 {
		q.HistoryYears = 10
	}
	if err := s.parseOptions(r, &q.Options); err != nil {
		return q, err
	}
	return q, q.Validate()
}

func (s *Server) defaultOptions() domain.Options {
	opts := domain.DefaultOptions()
	if s.defaults.WindowDays > 0 {
		opts.WindowDays = s.defaults.WindowDays
	}
	if s.defaults.Iterations > 0 {
		opts.Iterations = s.defaults.Iterations
	}
	if s.defaults.ConfidenceLevel > 0 {
		opts.ConfidenceLevel = s.defaults.ConfidenceLevel
	}
	if s.defaults.BaselineYears > 0 {
		opts.BaselineYears = s.defaults.BaselineYears
	}
	if s.defaults.Decay > 0 {
		opts.Decay = s.defaults.Decay
	}
	if s.defaults.Epsilon > 0 {
		opts.Epsilon = s.defaults.Epsilon
	}
	if s.defaults.MinPoints > 0 {
		opts.MinPoints = s.defaults.MinPoints
	}
	return opts
}

func (s *Server) parseOptions(r *http.Request, opts *domain.Options) error {
	var err error
	if opts.WindowDays, err = intParam(r, "window_days", opts.WindowDays); err != nil {
		return err
	}
	if opts.Iterations, err = intParam(r, "monte_carlo_iterations", opts.Iterations); err != nil {
		return err
	}
	if opts.ConfidenceLevel, err = intParam(r, "confidence_level", opts.ConfidenceLevel); err != nil {
		return err
	}
	if opts.BaselineYears, err = intParam(r, "baseline_years", opts.BaselineYears); err != nil {
		return err
	}
	if opts.Decay, err = floatParam(r, "decay", opts.Decay); err != nil {
		return err
	}
	if opts.Epsilon, err = floatParam(r, "epsilon", opts.Epsilon); err != nil {
		return err
	}
	if opts.MinPoints, err = intParam(r, "min_points", opts.MinPoints); err != nil {
		return err
	}
	return nil
}

func splitParam(r *http.Request, name string) []string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", domain.ErrInvalidRange, name, raw)
	}
	return v, nil
}

func floatParam(r *http.Request, name string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", domain.ErrInvalidRange, name, raw)
	}
	return v, nil
}
