package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

var anomalyKey = domain.CellKey{FeastType: "passover", EventType: domain.EventEarthquake}

// strengthMatrix fabricates a one-cell matrix with a given strength.
func strengthMatrix(year int, strength float64) *Matrix {
	return &Matrix{
		Cells: map[domain.CellKey]*Cell{
			anomalyKey: {
				CorrelationCell: domain.CorrelationCell{
					Key:              anomalyKey,
					TotalOccurrences: 1,
					StrengthScore:    strength,
				},
			},
		},
		Years: domain.YearRange{From: year, To: year},
	}
}

func TestAnomalyDetector(t *testing.T) {
	detector := &AnomalyDetector{BaselineYears: 5}

	t.Run("large departure is critical", func(t *testing.T) {
		// Baseline mean 0.10, std 0.02; observed 0.30 → z = 10.
		history := []*Matrix{
			strengthMatrix(2019, 0.08),
			strengthMatrix(2020, 0.10),
			strengthMatrix(2021, 0.12),
			strengthMatrix(2022, 0.08),
			strengthMatrix(2023, 0.12),
		}
		flags, unavailable := detector.Detect(strengthMatrix(2024, 0.30), history)

		require.Len(t, flags, 1)
		assert.Empty(t, unavailable)
		flag := flags[0]
		assert.Equal(t, anomalyKey, flag.Key)
		assert.InDelta(t, 0.10, flag.BaselineMean, 1e-9)
		assert.InDelta(t, 0.02, flag.BaselineStd, 1e-9)
		assert.InDelta(t, 10.0, flag.ZScore, 1e-6)
		assert.Equal(t, domain.SeverityCritical, flag.Severity)
	})

	t.Run("within band emits no flag", func(t *testing.T) {
		history := []*Matrix{
			strengthMatrix(2021, 0.10),
			strengthMatrix(2022, 0.12),
			strengthMatrix(2023, 0.08),
		}
		flags, unavailable := detector.Detect(strengthMatrix(2024, 0.11), history)
		assert.Empty(t, flags)
		assert.Empty(t, unavailable)
	})

	t.Run("single prior year is baseline unavailable", func(t *testing.T) {
		history := []*Matrix{strengthMatrix(2023, 0.10)}
		flags, unavailable := detector.Detect(strengthMatrix(2024, 0.50), history)
		assert.Empty(t, flags)
		assert.Equal(t, []domain.CellKey{anomalyKey}, unavailable)
	})

	t.Run("flat baseline uses epsilon floor", func(t *testing.T) {
		history := []*Matrix{
			strengthMatrix(2022, 0.10),
			strengthMatrix(2023, 0.10),
		}
		flags, _ := detector.Detect(strengthMatrix(2024, 0.20), history)
		require.Len(t, flags, 1)
		assert.Equal(t, domain.SeverityCritical, flags[0].Severity)
		assert.False(t, flags[0].ZScore != flags[0].ZScore, "z must not be NaN")
	})

	t.Run("only trailing baseline years count", func(t *testing.T) {
		shallow := &AnomalyDetector{BaselineYears: 2}
		history := []*Matrix{
			strengthMatrix(2019, 0.90), // outside depth, must be ignored
			strengthMatrix(2022, 0.10),
			strengthMatrix(2023, 0.10),
		}
		flags, _ := shallow.Detect(strengthMatrix(2024, 0.11), history)
		// With only the two 0.10 years in baseline, 0.11 is a huge z via
		// the epsilon floor; including 0.90 would swamp the mean instead.
		require.Len(t, flags, 1)
		assert.InDelta(t, 0.10, flags[0].BaselineMean, 1e-9)
	})

	t.Run("insufficient baseline cells skipped", func(t *testing.T) {
		current := strengthMatrix(2024, 0.30)
		current.Cells[anomalyKey].InsufficientBaseline = true
		flags, unavailable := detector.Detect(current, []*Matrix{
			strengthMatrix(2022, 0.10),
			strengthMatrix(2023, 0.10),
		})
		assert.Empty(t, flags)
		assert.Empty(t, unavailable)
	})
}

func TestSeverityForZ(t *testing.T) {
	cases := []struct {
		z        float64
		severity domain.Severity
		flagged  bool
	}{
		{0.0, "", false},
		{1.49, "", false},
		{-1.49, "", false},
		{1.5, domain.SeverityLow, true},
		{-2.0, domain.SeverityLow, true},
		{2.5, domain.SeverityMedium, true},
		{3.9, domain.SeverityMedium, true},
		{4.0, domain.SeverityHigh, true},
		{-5.5, domain.SeverityHigh, true},
		{6.0, domain.SeverityCritical, true},
		{10.0, domain.SeverityCritical, true},
	}
	for _, tc := range cases {
		severity, flagged := domain.SeverityForZ(tc.z)
		assert.Equal(t, tc.flagged, flagged, "z=%v", tc.z)
		assert.Equal(t, tc.severity, severity, "z=%v", tc.z)
	}
}
