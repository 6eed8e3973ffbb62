package analysis

import (
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// stdEpsilon floors a degenerate zero baseline deviation. A flat baseline
// with any departure is maximally anomalous, never a division by zero.
const stdEpsilon = 1e-9

// minBaselineYears is the fewest prior-year strength samples a z-score
// needs; below that the cell is reported baseline_unavailable.
const minBaselineYears = 2

// AnomalyDetector scores current-period cell strengths against a trailing
// per-year baseline of the same cell.
type AnomalyDetector struct {
	BaselineYears int
}

// Detect compares each defined cell of the current-period matrix against
// its strengths in the history matrices (one per preceding year, oldest
// first). Cells inside the |z| < 1.5 band emit no flag.
func (d *AnomalyDetector) Detect(current *Matrix, history []*Matrix) ([]domain.AnomalyFlag, []domain.CellKey) {
	var flags []domain.AnomalyFlag
	var unavailable []domain.CellKey

	for _, key := range current.Keys() {
		cell := current.Cells[key]
		if cell.InsufficientBaseline {
			continue
		}

		baseline := baselineStrengths(key, history, d.BaselineYears)
		if len(baseline) < minBaselineYears {
			unavailable = append(unavailable, key)
			continue
		}

		mean := stat.Mean(baseline, nil)
		std := stat.StdDev(baseline, nil)
		if std < stdEpsilon {
			std = stdEpsilon
		}

		z := (cell.StrengthScore - mean) / std
		severity, flagged := domain.SeverityForZ(z)
		if !flagged {
			continue
		}
		flags = append(flags, domain.AnomalyFlag{
			Key:              key,
			ObservedStrength: cell.StrengthScore,
			BaselineMean:     mean,
			BaselineStd:      std,
			ZScore:           z,
			Severity:         severity,
		})
	}
	return flags, unavailable
}

// baselineStrengths collects up to maxYears defined strengths for one cell
// from the most recent history matrices.
func baselineStrengths(key domain.CellKey, history []*Matrix, maxYears int) []float64 {
	var strengths []float64
	start := 0
	if len(history) > maxYears {
		start = len(history) - maxYears
	}
	for _, m := range history[start:] {
		cell, ok := m.Cells[key]
		if !ok || cell.InsufficientBaseline || cell.TotalOccurrences == 0 {
			continue
		}
		strengths = append(strengths, cell.StrengthScore)
	}
	return strengths
}
