package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/feast-correlation/internal/cache"
	"github.com/couchcryptid/feast-correlation/internal/domain"
	"github.com/couchcryptid/feast-correlation/internal/observability"
)

// DefaultForecastHistoryYears bounds how far back the forecaster reads when
// the caller does not say.
const DefaultForecastHistoryYears = 10

// Engine is the correlation engine service object. Every collaborator is
// injected at construction; there is no ambient global state and no lazy
// initialization.
type Engine struct {
	events  domain.EventStore
	feasts  domain.FeastCalendar
	results *cache.Cache
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	budget  time.Duration
	workers int
}

// NewEngine wires the engine. Nil collaborators are a construction error,
// not a runtime existence check.
func NewEngine(events domain.EventStore, feasts domain.FeastCalendar, results *cache.Cache, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, budget time.Duration, workers int) (*Engine, error) {
	switch {
	case events == nil:
		return nil, errors.New("engine: event store is required")
	case feasts == nil:
		return nil, errors.New("engine: feast calendar is required")
	case results == nil:
		return nil, errors.New("engine: result cache is required")
	case clock == nil:
		return nil, errors.New("engine: clock is required")
	case logger == nil:
		return nil, errors.New("engine: logger is required")
	case metrics == nil:
		return nil, errors.New("engine: metrics are required")
	}
	if budget <= 0 {
		budget = 2 * time.Second
	}
	if workers < 1 {
		workers = 4
	}
	return &Engine{
		events:  events,
		feasts:  feasts,
		results: results,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		budget:  budget,
		workers: workers,
	}, nil
}

// CheckReadiness probes both collaborators with minimal reads.
func (e *Engine) CheckReadiness(ctx context.Context) error {
	now := e.clock.Now()
	if _, err := e.events.QueryEvents(ctx, domain.EventEarthquake, now.AddDate(0, 0, -1), now); err != nil {
		e.metrics.EngineReady.Set(0)
		return fmt.Errorf("event store: %w", err)
	}
	year := now.UTC().Year()
	if _, err := e.feasts.ListFeasts(ctx, nil, domain.YearRange{From: year, To: year}); err != nil {
		e.metrics.EngineReady.Set(0)
		return fmt.Errorf("feast calendar: %w", err)
	}
	e.metrics.EngineReady.Set(1)
	return nil
}

// GetCorrelationMatrix computes (or serves from cache) the full
// feast-type × event-type correlation matrix with significance statistics.
func (e *Engine) GetCorrelationMatrix(ctx context.Context, q domain.Query) (*domain.MatrixResult, error) {
	if err := q.Validate(); err != nil {
		e.metrics.QueriesTotal.WithLabelValues("matrix", "invalid").Inc()
		return nil, err
	}
	eventTypes := resolveEventTypes(q.EventTypes)
	fp := cache.Fingerprint(canonicalQuery("matrix", q, nil))

	payload, cached, err := e.results.GetOrCompute(ctx, fp, eventTypes, func(ctx context.Context) (any, error) {
		return e.computeMatrix(ctx, q, eventTypes)
	})
	if err != nil {
		e.metrics.QueriesTotal.WithLabelValues("matrix", outcomeFor(err)).Inc()
		return nil, err
	}
	if !cached {
		e.metrics.QueriesTotal.WithLabelValues("matrix", "ok").Inc()
	}
	return payload.(*domain.MatrixResult), nil
}

// GetAnomalies flags cells whose current-period strength departs from the
// trailing per-year baseline.
func (e *Engine) GetAnomalies(ctx context.Context, q domain.Query) (*domain.AnomalyResult, error) {
	if err := q.Validate(); err != nil {
		e.metrics.QueriesTotal.WithLabelValues("anomalies", "invalid").Inc()
		return nil, err
	}
	eventTypes := resolveEventTypes(q.EventTypes)
	fp := cache.Fingerprint(canonicalQuery("anomalies", q, nil))

	payload, cached, err := e.results.GetOrCompute(ctx, fp, eventTypes, func(ctx context.Context) (any, error) {
		return e.computeAnomalies(ctx, q, eventTypes)
	})
	if err != nil {
		e.metrics.QueriesTotal.WithLabelValues("anomalies", outcomeFor(err)).Inc()
		return nil, err
	}
	if !cached {
		e.metrics.QueriesTotal.WithLabelValues("anomalies", "ok").Inc()
	}
	return payload.(*domain.AnomalyResult), nil
}

// GetClusters groups matched correlation pairs into pattern clusters.
func (e *Engine) GetClusters(ctx context.Context, q domain.Query) (*domain.ClusterResult, error) {
	if err := q.Validate(); err != nil {
		e.metrics.QueriesTotal.WithLabelValues("clusters", "invalid").Inc()
		return nil, err
	}
	eventTypes := resolveEventTypes(q.EventTypes)
	fp := cache.Fingerprint(canonicalQuery("clusters", q, nil))

	payload, cached, err := e.results.GetOrCompute(ctx, fp, eventTypes, func(ctx context.Context) (any, error) {
		return e.computeClusters(ctx, q, eventTypes)
	})
	if err != nil {
		e.metrics.QueriesTotal.WithLabelValues("clusters", outcomeFor(err)).Inc()
		return nil, err
	}
	if !cached {
		e.metrics.QueriesTotal.WithLabelValues("clusters", "ok").Inc()
	}
	return payload.(*domain.ClusterResult), nil
}

// GetForecasts projects event probabilities for upcoming feast instances.
func (e *Engine) GetForecasts(ctx context.Context, q domain.ForecastQuery) (*domain.ForecastResult, error) {
	if q.HistoryYears == 0 {
		q.HistoryYears = DefaultForecastHistoryYears
	}
	if err := q.Validate(); err != nil {
		e.metrics.QueriesTotal.WithLabelValues("forecasts", "invalid").Inc()
		return nil, err
	}
	eventTypes := resolveEventTypes(q.EventTypes)
	fp := cache.Fingerprint(canonicalForecastQuery(q))

	payload, cached, err := e.results.GetOrCompute(ctx, fp, eventTypes, func(ctx context.Context) (any, error) {
		return e.computeForecasts(ctx, q, eventTypes)
	})
	if err != nil {
		e.metrics.QueriesTotal.WithLabelValues("forecasts", outcomeFor(err)).Inc()
		return nil, err
	}
	if !cached {
		e.metrics.QueriesTotal.WithLabelValues("forecasts", "ok").Inc()
	}
	return payload.(*domain.ForecastResult), nil
}

// snapshot reads all events and feasts for one computation in a single pass
// over the collaborators. Every later step works from these immutable
// slices, so a store update mid-computation cannot tear the result.
type snapshot struct {
	correlator *Correlator
	feasts     []domain.FeastInstance
}

func (e *Engine) snapshot(ctx context.Context, feastTypes []string, eventTypes []domain.EventType, years domain.YearRange, windowDays int) (*snapshot, error) {
	feasts, err := e.feasts.ListFeasts(ctx, feastTypes, years)
	if err != nil {
		return nil, upstream("list feasts", err)
	}

	// Pad the read range by the window so events just outside the year
	// boundary still match edge feasts.
	from := time.Date(years.From, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(windowDays + 1))
	to := time.Date(years.To+1, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, windowDays+1)

	byType := make(map[domain.EventType][]domain.TemporalEvent, len(eventTypes))
	for _, t := range eventTypes {
		events, err := e.events.QueryEvents(ctx, t, from, to)
		if err != nil {
			return nil, upstream(fmt.Sprintf("query %s events", t), err)
		}
		byType[t] = events
	}

	return &snapshot{correlator: NewCorrelator(byType), feasts: feasts}, nil
}

func (e *Engine) computeMatrix(ctx context.Context, q domain.Query, eventTypes []domain.EventType) (*domain.MatrixResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	snap, err := e.snapshot(ctx, q.FeastTypes, eventTypes, q.Years, q.Options.WindowDays)
	if err != nil {
		return nil, err
	}
	matrix, err := BuildMatrix(snap.correlator, snap.feasts, eventTypes, q.Years, q.Options.WindowDays)
	if err != nil {
		return nil, err
	}
	if err := e.evaluateSignificance(ctx, snap.correlator, matrix, q.Years, q.Options); err != nil {
		return nil, err
	}

	result := &domain.MatrixResult{
		Cells:      make(map[string]domain.CorrelationCell, len(matrix.Cells)),
		ComputedAt: e.clock.Now(),
	}
	for key, cell := range matrix.Cells {
		result.Cells[key.String()] = cell.CorrelationCell
		if cell.Approximate {
			result.Approximate = true
		}
	}
	e.metrics.ComputationDuration.WithLabelValues("matrix").Observe(time.Since(start).Seconds())
	return result, nil
}

// evaluateSignificance runs the Monte Carlo test across cells on a bounded
// worker group; per-cell evaluations are independent.
func (e *Engine) evaluateSignificance(ctx context.Context, corr *Correlator, matrix *Matrix, years domain.YearRange, opts domain.Options) error {
	sig := &Significance{Iterations: opts.Iterations, ConfidenceLevel: opts.ConfidenceLevel}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, key := range matrix.Keys() {
		cell := matrix.Cells[key]
		g.Go(func() error {
			completed, err := sig.Evaluate(gctx, corr, cell, years, opts.WindowDays)
			var insufficient *domain.InsufficientDataError
			if errors.As(err, &insufficient) {
				// Recovered locally: the cell carries the flag instead.
				e.logger.Debug("significance skipped", "cell", cell.Key.String(), "occurrences", insufficient.Occurrences)
				return nil
			}
			if err != nil {
				return err
			}
			if completed > 0 {
				e.metrics.MonteCarloIterations.Observe(float64(completed))
			}
			if cell.Approximate {
				e.metrics.ApproximateResults.Inc()
				e.logger.Warn("monte carlo degraded to fit budget",
					"cell", cell.Key.String(), "completed", completed, "requested", opts.Iterations)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) computeAnomalies(ctx context.Context, q domain.Query, eventTypes []domain.EventType) (*domain.AnomalyResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	snap, err := e.snapshot(ctx, q.FeastTypes, eventTypes, q.Years, q.Options.WindowDays)
	if err != nil {
		return nil, err
	}

	template := &Matrix{WindowDays: q.Options.WindowDays}
	currentYear := q.Years.To

	current, err := template.PerYear(snap.correlator, snap.feasts, eventTypes, currentYear)
	if err != nil {
		return nil, err
	}

	// Baseline years precede the current period, bounded by the query range
	// and the configured depth; fewer are tolerated, below two none.
	firstBaseline := currentYear - q.Options.BaselineYears
	if firstBaseline < q.Years.From {
		firstBaseline = q.Years.From
	}
	var history []*Matrix
	for y := firstBaseline; y < currentYear; y++ {
		m, err := template.PerYear(snap.correlator, snap.feasts, eventTypes, y)
		if err != nil {
			return nil, err
		}
		history = append(history, m)
	}

	detector := &AnomalyDetector{BaselineYears: q.Options.BaselineYears}
	flags, unavailable := detector.Detect(current, history)

	e.metrics.ComputationDuration.WithLabelValues("anomalies").Observe(time.Since(start).Seconds())
	return &domain.AnomalyResult{
		Flags:               flags,
		BaselineUnavailable: unavailable,
		ComputedAt:          e.clock.Now(),
	}, nil
}

func (e *Engine) computeClusters(ctx context.Context, q domain.Query, eventTypes []domain.EventType) (*domain.ClusterResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	snap, err := e.snapshot(ctx, q.FeastTypes, eventTypes, q.Years, q.Options.WindowDays)
	if err != nil {
		return nil, err
	}
	matrix, err := BuildMatrix(snap.correlator, snap.feasts, eventTypes, q.Years, q.Options.WindowDays)
	if err != nil {
		return nil, err
	}

	var inputs []ClusterInput
	for _, key := range matrix.Keys() {
		cell := matrix.Cells[key]
		if cell.InsufficientBaseline {
			continue
		}
		for _, pair := range cell.Pairs {
			inputs = append(inputs, ClusterInput{Pair: pair, NormStrength: cell.StrengthScore})
		}
	}

	result := ClusterPairs(inputs, q.Options.Epsilon, q.Options.MinPoints)
	e.metrics.ComputationDuration.WithLabelValues("clusters").Observe(time.Since(start).Seconds())
	return &result, nil
}

func (e *Engine) computeForecasts(ctx context.Context, q domain.ForecastQuery, eventTypes []domain.EventType) (*domain.ForecastResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	now := e.clock.Now().UTC()
	nowYear := now.Year()
	histYears := domain.YearRange{From: nowYear - q.HistoryYears, To: nowYear - 1}

	snap, err := e.snapshot(ctx, q.FeastTypes, eventTypes, histYears, q.Options.WindowDays)
	if err != nil {
		return nil, err
	}

	aggregate, err := BuildMatrix(snap.correlator, snap.feasts, eventTypes, histYears, q.Options.WindowDays)
	if err != nil {
		return nil, err
	}
	if err := e.evaluateSignificance(ctx, snap.correlator, aggregate, histYears, q.Options); err != nil {
		return nil, err
	}

	var perYear []*Matrix
	for y := histYears.From; y <= histYears.To; y++ {
		m, err := aggregate.PerYear(snap.correlator, snap.feasts, eventTypes, y)
		if err != nil {
			return nil, err
		}
		perYear = append(perYear, m)
	}

	maxHorizon := 0
	for _, h := range q.Horizons {
		if h > maxHorizon {
			maxHorizon = h
		}
	}
	upcoming, err := e.feasts.ListFeasts(ctx, q.FeastTypes, domain.YearRange{From: nowYear, To: nowYear + (maxHorizon / 365) + 1})
	if err != nil {
		return nil, upstream("list upcoming feasts", err)
	}

	forecaster := &Forecaster{Decay: q.Options.Decay}
	forecasts := forecaster.Forecast(now, q.Horizons, upcoming, aggregate, perYear, eventTypes)

	e.metrics.ComputationDuration.WithLabelValues("forecasts").Observe(time.Since(start).Seconds())
	return &domain.ForecastResult{Forecasts: forecasts, ComputedAt: e.clock.Now()}, nil
}

func resolveEventTypes(requested []domain.EventType) []domain.EventType {
	if len(requested) == 0 {
		return domain.KnownEventTypes()
	}
	types := append([]domain.EventType(nil), requested...)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// upstream folds a collaborator failure into the error taxonomy unless it
// already carries the sentinel.
func upstream(op string, err error) error {
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrUpstreamUnavailable, err)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		return "invalid"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_error"
	default:
		return "error"
	}
}

// canonicalQuery renders the full parameter set in a stable order; equal
// queries must fingerprint identically.
func canonicalQuery(operation string, q domain.Query, extra []string) string {
	parts := []string{
		"op=" + operation,
		"feasts=" + joinSorted(q.FeastTypes),
		"events=" + joinSortedTypes(q.EventTypes),
		"years=" + strconv.Itoa(q.Years.From) + ".." + strconv.Itoa(q.Years.To),
		"window=" + strconv.Itoa(q.Options.WindowDays),
		"iters=" + strconv.Itoa(q.Options.Iterations),
		"level=" + strconv.Itoa(q.Options.ConfidenceLevel),
		"baseline=" + strconv.Itoa(q.Options.BaselineYears),
		"decay=" + strconv.FormatFloat(q.Options.Decay, 'g', -1, 64),
		"eps=" + strconv.FormatFloat(q.Options.Epsilon, 'g', -1, 64),
		"minpts=" + strconv.Itoa(q.Options.MinPoints),
	}
	parts = append(parts, extra...)
	return strings.Join(parts, "|")
}

func canonicalForecastQuery(q domain.ForecastQuery) string {
	horizons := append([]int(nil), q.Horizons...)
	sort.Ints(horizons)
	hs := make([]string, len(horizons))
	for i, h := range horizons {
		hs[i] = strconv.Itoa(h)
	}
	base := domain.Query{
		FeastTypes: q.FeastTypes,
		EventTypes: q.EventTypes,
		Years:      domain.YearRange{From: -q.HistoryYears, To: 0}, // relative history span
		Options:    q.Options,
	}
	return canonicalQuery("forecasts", base, []string{"horizons=" + strings.Join(hs, ",")})
}

func joinSorted(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func joinSortedTypes(types []domain.EventType) string {
	strs := make([]string, len(types))
	for i, t := range types {
		strs[i] = string(t)
	}
	return joinSorted(strs)
}
