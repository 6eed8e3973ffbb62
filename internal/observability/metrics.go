package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// correlation engine.
type Metrics struct {
	QueriesTotal        *prometheus.CounterVec // labels: operation={matrix,anomalies,clusters,forecasts}, outcome={ok,invalid,upstream_error,error}
	ComputationDuration *prometheus.HistogramVec
	EngineReady         prometheus.Gauge

	// Result cache metrics.
	CacheLookups  *prometheus.CounterVec // labels: result={hit,miss,shared}
	Invalidations prometheus.Counter

	// Monte Carlo metrics.
	MonteCarloIterations prometheus.Histogram
	ApproximateResults   prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.QueriesTotal,
		m.ComputationDuration,
		m.EngineReady,
		m.CacheLookups,
		m.Invalidations,
		m.MonteCarloIterations,
		m.ApproximateResults,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feast_corr",
			Name:      "queries_total",
			Help:      "Engine queries by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ComputationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feast_corr",
			Name:      "computation_duration_seconds",
			Help:      "Duration of one full uncached computation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"operation"}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feast_corr",
			Name:      "engine_ready",
			Help:      "1 when the engine's collaborators are reachable.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feast_corr",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result (hit, miss, shared in-flight wait).",
		}, []string{"result"}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feast_corr",
			Name:      "cache_invalidations_total",
			Help:      "Cache entries dropped by ingestion signals.",
		}),
		MonteCarloIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feast_corr",
			Name:      "monte_carlo_iterations",
			Help:      "Monte Carlo iterations completed per significance evaluation.",
			Buckets:   []float64{100, 250, 500, 750, 1000, 2000, 5000},
		}),
		ApproximateResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feast_corr",
			Name:      "approximate_results_total",
			Help:      "Results degraded to fewer iterations by the latency budget.",
		}),
	}
}
