package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// priorWeight anchors the Bayesian blend: with no usable history the
// forecast collapses to the unconditional prior.
const priorWeight = 1.0

// Forecaster projects event probabilities for upcoming feast instances by
// blending each event type's unconditional base rate with exponentially
// recency-weighted historical cell strengths.
type Forecaster struct {
	Decay float64
}

// Forecast produces one projection per (horizon, upcoming feast, event type)
// with a defined cell in the aggregate matrix. Cells rejected for
// insufficient evidence still yield a forecast, flagged unreliable with zero
// confidence, so callers can see that a prediction was attempted.
func (f *Forecaster) Forecast(now time.Time, horizons []int, upcoming []domain.FeastInstance, aggregate *Matrix, perYear []*Matrix, eventTypes []domain.EventType) []domain.Forecast {
	sortedHorizons := append([]int(nil), horizons...)
	sort.Ints(sortedHorizons)

	ordered := append([]domain.FeastInstance(nil), upcoming...)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].StartDate.Equal(ordered[j].StartDate) {
			return ordered[i].StartDate.Before(ordered[j].StartDate)
		}
		return ordered[i].FeastType < ordered[j].FeastType
	})

	var forecasts []domain.Forecast
	for _, h := range sortedHorizons {
		cutoff := now.AddDate(0, 0, h)
		for _, feast := range ordered {
			if feast.StartDate.Before(now) || feast.StartDate.After(cutoff) {
				continue
			}
			for _, et := range eventTypes {
				key := domain.CellKey{FeastType: feast.FeastType, EventType: et}
				cell, ok := aggregate.Cells[key]
				if !ok {
					continue
				}
				forecasts = append(forecasts, f.forecastCell(now, h, feast, key, cell, perYear))
			}
		}
	}
	return forecasts
}

func (f *Forecaster) forecastCell(now time.Time, horizon int, feast domain.FeastInstance, key domain.CellKey, cell *Cell, perYear []*Matrix) domain.Forecast {
	out := domain.Forecast{
		HorizonDays:       horizon,
		Feast:             feast,
		EventType:         key.EventType,
		ContributingCells: []domain.CellKey{key},
	}

	if cell.InsufficientBaseline || cell.LowSampleSize || cell.PValue == nil {
		out.Unreliable = true
		out.ConfidenceScore = 0
		out.PredictedProbability = clamp01(cell.ExpectedRate)
		return out
	}

	prior := cell.ExpectedRate
	weightSum := priorWeight
	valueSum := priorWeight * prior

	nowYear := now.UTC().Year()
	for _, m := range perYear {
		yearCell, ok := m.Cells[key]
		if !ok || yearCell.InsufficientBaseline || yearCell.TotalOccurrences == 0 {
			continue
		}
		yearsAgo := nowYear - m.Years.From
		if yearsAgo < 0 {
			continue
		}
		w := yearCell.StrengthScore * math.Pow(f.Decay, float64(yearsAgo))
		weightSum += w
		valueSum += w * yearCell.ObservedRate
	}

	out.PredictedProbability = clamp01(valueSum / weightSum)
	out.ConfidenceScore = clamp01((1 - *cell.PValue) * math.Min(1, float64(cell.TotalOccurrences)/10))
	return out
}
