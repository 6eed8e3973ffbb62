package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/feast-correlation/internal/config"
	"github.com/couchcryptid/feast-correlation/internal/domain"
)

type stubEngine struct {
	lastQuery         domain.Query
	lastForecastQuery domain.ForecastQuery

	matrixResult   *domain.MatrixResult
	anomalyResult  *domain.AnomalyResult
	clusterResult  *domain.ClusterResult
	forecastResult *domain.ForecastResult

	err      error
	notReady error
}

func (s *stubEngine) GetCorrelationMatrix(_ context.Context, q domain.Query) (*domain.MatrixResult, error) {
	s.lastQuery = q
	return s.matrixResult, s.err
}

func (s *stubEngine) GetAnomalies(_ context.Context, q domain.Query) (*domain.AnomalyResult, error) {
	s.lastQuery = q
	return s.anomalyResult, s.err
}

func (s *stubEngine) GetClusters(_ context.Context, q domain.Query) (*domain.ClusterResult, error) {
	s.lastQuery = q
	return s.clusterResult, s.err
}

func (s *stubEngine) GetForecasts(_ context.Context, q domain.ForecastQuery) (*domain.ForecastResult, error) {
	s.lastForecastQuery = q
	return s.forecastResult, s.err
}

func (s *stubEngine) CheckReadiness(context.Context) error {
	return s.notReady
}

func newTestServer(engine *stubEngine) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", engine, config.AnalysisConfig{}, logger)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		rec := get(t, newTestServer(&stubEngine{}), "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	})

	t.Run("readyz ready", func(t *testing.T) {
		rec := get(t, newTestServer(&stubEngine{}), "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz not ready", func(t *testing.T) {
		engine := &stubEngine{notReady: fmt.Errorf("event store: connection refused")}
		rec := get(t, newTestServer(engine), "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleCorrelations(t *testing.T) {
	t.Run("passes parsed query to the engine", func(t *testing.T) {
		engine := &stubEngine{matrixResult: &domain.MatrixResult{
			Cells:      map[string]domain.CorrelationCell{},
			ComputedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		}}
		server := newTestServer(engine)

		rec := get(t, server, "/api/v1/correlations?feast_types=passover,easter&event_types=earthquake&from_year=2015&to_year=2024&window_days=10")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

		assert.Equal(t, []string{"passover", "easter"}, engine.lastQuery.FeastTypes)
		assert.Equal(t, []domain.EventType{domain.EventEarthquake}, engine.lastQuery.EventTypes)
		assert.Equal(t, domain.YearRange{From: 2015, To: 2024}, engine.lastQuery.Years)
		assert.Equal(t, 10, engine.lastQuery.Options.WindowDays)
		// Unspecified options keep their defaults.
		assert.Equal(t, domain.DefaultIterations, engine.lastQuery.Options.Iterations)

		var body domain.MatrixResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, engine.matrixResult.ComputedAt, body.ComputedAt)
	})

	t.Run("missing year range is a bad request", func(t *testing.T) {
		rec := get(t, newTestServer(&stubEngine{}), "/api/v1/correlations")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown event type is a bad request", func(t *testing.T) {
		rec := get(t, newTestServer(&stubEngine{}), "/api/v1/correlations?event_types=meteor&from_year=2015&to_year=2024")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-numeric parameter is a bad request", func(t *testing.T) {
		rec := get(t, newTestServer(&stubEngine{}), "/api/v1/correlations?from_year=abc&to_year=2024")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upstream failure maps to bad gateway", func(t *testing.T) {
		engine := &stubEngine{err: fmt.Errorf("query events: %w", domain.ErrUpstreamUnavailable)}
		rec := get(t, newTestServer(engine), "/api/v1/correlations?from_year=2015&to_year=2024")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("unclassified failure maps to internal error", func(t *testing.T) {
		engine := &stubEngine{err: fmt.Errorf("unexpected")}
		rec := get(t, newTestServer(engine), "/api/v1/correlations?from_year=2015&to_year=2024")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleAnomalies(t *testing.T) {
	engine := &stubEngine{anomalyResult: &domain.AnomalyResult{}}
	rec := get(t, newTestServer(engine), "/api/v1/anomalies?from_year=2015&to_year=2024&baseline_years=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, engine.lastQuery.Options.BaselineYears)
}

func TestHandleClusters(t *testing.T) {
	engine := &stubEngine{clusterResult: &domain.ClusterResult{}}
	rec := get(t, newTestServer(engine), "/api/v1/clusters?from_year=2015&to_year=2024&epsilon=2.5&min_points=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 2.5, engine.lastQuery.Options.Epsilon, 1e-9)
	assert.Equal(t, 3, engine.lastQuery.Options.MinPoints)
}

func TestHandleForecasts(t *testing.T) {
	t.Run("horizons default to the supported list", func(t *testing.T) {
		engine := &stubEngine{forecastResult: &domain.ForecastResult{}}
		rec := get(t, newTestServer(engine), "/api/v1/forecasts")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.ForecastHorizons, engine.lastForecastQuery.Horizons)
		assert.Equal(t, 10, engine.lastForecastQuery.HistoryYears)
	})

	t.Run("explicit horizons", func(t *testing.T) {
		engine := &stubEngine{forecastResult: &domain.ForecastResult{}}
		rec := get(t, newTestServer(engine), "/api/v1/forecasts?horizons=7,30&history_years=5")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int{7, 30}, engine.lastForecastQuery.Horizons)
		assert.Equal(t, 5, engine.lastForecastQuery.HistoryYears)
	})

	t.Run("unsupported horizon is a bad request", func(t *testing.T) {
		rec := get(t, newTestServer(&stubEngine{}), "/api/v1/forecasts?horizons=13")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMethodRouting(t *testing.T) {
	server := newTestServer(&stubEngine{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/correlations", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
