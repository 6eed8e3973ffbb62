package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

func buildTestCell(t *testing.T, corr *Correlator, feasts []domain.FeastInstance, years domain.YearRange) *Cell {
	t.Helper()
	m, err := BuildMatrix(corr, feasts, []domain.EventType{domain.EventEarthquake}, years, 7)
	require.NoError(t, err)
	cell := m.Cells[domain.CellKey{FeastType: "passover", EventType: domain.EventEarthquake}]
	require.NotNil(t, cell)
	return cell
}

func TestSignificanceEvaluate(t *testing.T) {
	years := domain.YearRange{From: 2020, To: 2024}
	feasts := []domain.FeastInstance{
		passover(2020, 4, 8),
		passover(2021, 3, 27),
		passover(2022, 4, 16),
		passover(2023, 4, 6),
		passover(2024, 4, 22),
	}
	corr := newTestCorrelator(
		quake("a", date(2020, 4, 10), 6.0),
		quake("b", date(2021, 3, 25), 5.8),
		quake("c", date(2022, 4, 14), 6.1),
		quake("d", date(2023, 4, 4), 5.5),
		quake("e", date(2024, 4, 20), 6.3),
		quake("f", date(2022, 11, 2), 5.2),
	)

	t.Run("p-value within bounds", func(t *testing.T) {
		cell := buildTestCell(t, corr, feasts, years)
		sig := &Significance{Iterations: 200, ConfidenceLevel: 95}

		completed, err := sig.Evaluate(context.Background(), corr, cell, years, 7)
		require.NoError(t, err)
		assert.Equal(t, 200, completed)
		require.NotNil(t, cell.PValue)
		assert.Greater(t, *cell.PValue, 0.0)
		assert.LessOrEqual(t, *cell.PValue, 1.0)
		assert.False(t, cell.Approximate)
	})

	t.Run("deterministic for a fixed seed derivation", func(t *testing.T) {
		sig := &Significance{Iterations: 200, ConfidenceLevel: 95}

		cell1 := buildTestCell(t, corr, feasts, years)
		_, err := sig.Evaluate(context.Background(), corr, cell1, years, 7)
		require.NoError(t, err)

		cell2 := buildTestCell(t, corr, feasts, years)
		_, err = sig.Evaluate(context.Background(), corr, cell2, years, 7)
		require.NoError(t, err)

		assert.Equal(t, *cell1.PValue, *cell2.PValue)
		assert.Equal(t, cell1.ConfidenceInterval, cell2.ConfidenceInterval)
	})

	t.Run("iteration count changes the seed", func(t *testing.T) {
		cell := buildTestCell(t, corr, feasts, years)
		assert.NotEqual(t,
			seedFor(cell.Key, 200),
			seedFor(cell.Key, 1000),
		)
	})

	t.Run("confidence interval is ordered and bounded", func(t *testing.T) {
		cell := buildTestCell(t, corr, feasts, years)
		sig := &Significance{Iterations: 300, ConfidenceLevel: 99}

		_, err := sig.Evaluate(context.Background(), corr, cell, years, 7)
		require.NoError(t, err)
		ci := cell.ConfidenceInterval
		assert.GreaterOrEqual(t, ci.Lo, 0.0)
		assert.LessOrEqual(t, ci.Hi, 1.0)
		assert.LessOrEqual(t, ci.Lo, ci.Hi)
	})

	t.Run("two occurrences is a low sample", func(t *testing.T) {
		small := []domain.FeastInstance{passover(2023, 4, 6), passover(2024, 4, 22)}
		smallYears := domain.YearRange{From: 2023, To: 2024}
		cell := buildTestCell(t, corr, small, smallYears)
		sig := &Significance{Iterations: 200, ConfidenceLevel: 95}

		_, err := sig.Evaluate(context.Background(), corr, cell, smallYears, 7)
		var insufficient *domain.InsufficientDataError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 2, insufficient.Occurrences)
		assert.Nil(t, cell.PValue)
		assert.True(t, cell.LowSampleSize)
	})

	t.Run("expired deadline degrades instead of blocking", func(t *testing.T) {
		cell := buildTestCell(t, corr, feasts, years)
		sig := &Significance{Iterations: 100000, ConfidenceLevel: 95}

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		completed, err := sig.Evaluate(ctx, corr, cell, years, 7)
		require.NoError(t, err)
		assert.Less(t, completed, 100000)
		assert.True(t, cell.Approximate)
	})

	t.Run("insufficient baseline cell is skipped", func(t *testing.T) {
		emptyCorr := newTestCorrelator()
		cell := buildTestCell(t, emptyCorr, feasts, years)
		require.True(t, cell.InsufficientBaseline)

		sig := &Significance{Iterations: 200, ConfidenceLevel: 95}
		completed, err := sig.Evaluate(context.Background(), emptyCorr, cell, years, 7)
		require.NoError(t, err)
		assert.Zero(t, completed)
		assert.Nil(t, cell.PValue)
	})
}
