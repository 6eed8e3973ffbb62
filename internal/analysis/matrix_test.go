package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

func passover(year int, m time.Month, d int) domain.FeastInstance {
	start := date(year, m, d)
	return domain.FeastInstance{
		FeastType: "passover",
		Name:      "Passover",
		Year:      year,
		StartDate: start,
		EndDate:   start,
	}
}

func TestBuildMatrix(t *testing.T) {
	years := domain.YearRange{From: 2022, To: 2024}
	feasts := []domain.FeastInstance{
		passover(2022, 4, 16),
		passover(2023, 4, 6),
		passover(2024, 4, 22),
	}

	t.Run("match count is instances with at least one event", func(t *testing.T) {
		corr := newTestCorrelator(
			quake("a", date(2022, 4, 14), 6.0),
			quake("b", date(2022, 4, 15), 6.1), // second match for the same instance
			quake("c", date(2024, 4, 20), 6.2),
		)

		m, err := BuildMatrix(corr, feasts, []domain.EventType{domain.EventEarthquake}, years, 7)
		require.NoError(t, err)

		cell := m.Cells[domain.CellKey{FeastType: "passover", EventType: domain.EventEarthquake}]
		require.NotNil(t, cell)
		assert.Equal(t, 2, cell.MatchCount)
		assert.Equal(t, 3, cell.TotalOccurrences)
		assert.InDelta(t, 2.0/3.0, cell.ObservedRate, 1e-9)
		assert.Len(t, cell.Pairs, 3)
		assert.Equal(t, []bool{true, false, true}, cell.InstanceMatched)
	})

	t.Run("strength and p-value bounds", func(t *testing.T) {
		corr := newTestCorrelator(
			quake("a", date(2022, 4, 14), 6.0),
			quake("b", date(2023, 4, 8), 6.0),
			quake("c", date(2024, 4, 20), 6.0),
		)

		m, err := BuildMatrix(corr, feasts, []domain.EventType{domain.EventEarthquake}, years, 7)
		require.NoError(t, err)

		cell := m.Cells[domain.CellKey{FeastType: "passover", EventType: domain.EventEarthquake}]
		assert.GreaterOrEqual(t, cell.StrengthScore, 0.0)
		assert.LessOrEqual(t, cell.StrengthScore, 1.0)
		assert.Positive(t, cell.RawLift)
		assert.False(t, cell.InsufficientBaseline)
	})

	t.Run("no events of a type marks insufficient baseline", func(t *testing.T) {
		corr := newTestCorrelator() // empty store

		m, err := BuildMatrix(corr, feasts, []domain.EventType{domain.EventSolar}, years, 7)
		require.NoError(t, err)

		cell := m.Cells[domain.CellKey{FeastType: "passover", EventType: domain.EventSolar}]
		require.NotNil(t, cell)
		assert.True(t, cell.InsufficientBaseline)
		assert.Zero(t, cell.StrengthScore)
		assert.Zero(t, cell.ExpectedRate)
	})

	t.Run("feast types without instances are excluded not zero-filled", func(t *testing.T) {
		corr := newTestCorrelator(quake("a", date(2022, 4, 14), 6.0))

		m, err := BuildMatrix(corr, feasts, []domain.EventType{domain.EventEarthquake}, years, 7)
		require.NoError(t, err)

		_, exists := m.Cells[domain.CellKey{FeastType: "easter", EventType: domain.EventEarthquake}]
		assert.False(t, exists)
		assert.Len(t, m.Cells, 1)
	})

	t.Run("deterministic across rebuilds", func(t *testing.T) {
		corr := newTestCorrelator(
			quake("a", date(2022, 4, 14), 6.0),
			quake("b", date(2023, 7, 1), 5.5),
			quake("c", date(2024, 4, 20), 6.2),
		)

		m1, err := BuildMatrix(corr, feasts, []domain.EventType{domain.EventEarthquake}, years, 7)
		require.NoError(t, err)
		m2, err := BuildMatrix(corr, feasts, []domain.EventType{domain.EventEarthquake}, years, 7)
		require.NoError(t, err)

		key := domain.CellKey{FeastType: "passover", EventType: domain.EventEarthquake}
		assert.Equal(t, m1.Cells[key].CorrelationCell, m2.Cells[key].CorrelationCell)
	})

	t.Run("mean delta days averages all matched pairs", func(t *testing.T) {
		corr := newTestCorrelator(
			quake("a", date(2022, 4, 14), 6.0), // -2
			quake("b", date(2022, 4, 20), 6.0), // +4
		)

		m, err := BuildMatrix(corr, []domain.FeastInstance{passover(2022, 4, 16)},
			[]domain.EventType{domain.EventEarthquake}, domain.YearRange{From: 2022, To: 2022}, 7)
		require.NoError(t, err)

		cell := m.Cells[domain.CellKey{FeastType: "passover", EventType: domain.EventEarthquake}]
		assert.InDelta(t, 1.0, cell.MeanDeltaDays, 1e-9)
	})

	t.Run("negative window rejected", func(t *testing.T) {
		_, err := BuildMatrix(newTestCorrelator(), feasts, []domain.EventType{domain.EventEarthquake}, years, -1)
		require.ErrorIs(t, err, domain.ErrInvalidRange)
	})
}

func TestExpectedRate(t *testing.T) {
	t.Run("zero annual count", func(t *testing.T) {
		assert.Zero(t, expectedRate(15, 0))
	})

	t.Run("grows with annual count", func(t *testing.T) {
		low := expectedRate(15, 5)
		high := expectedRate(15, 100)
		assert.Greater(t, high, low)
	})

	t.Run("stays inside open unit interval", func(t *testing.T) {
		assert.Less(t, expectedRate(400, 1000), 1.0)
		assert.Greater(t, expectedRate(1, 0.1), 0.0)
	})
}
