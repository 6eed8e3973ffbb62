package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// daysPerYear is the Poisson-approximation calendar constant. The expected
// rate derived from it is a calibration parameter, not a physical truth;
// see the builder notes on expectedRate.
const daysPerYear = 365.25

// Cell is a correlation cell plus the per-instance evidence the significance
// engine and forecaster need. The embedded CorrelationCell is the
// serializable aggregate handed to callers.
type Cell struct {
	domain.CorrelationCell

	Instances       []domain.FeastInstance
	InstanceMatched []bool // parallel to Instances
	Pairs           []domain.CorrelationPair
}

// Matrix maps every populated (feast type, event type) cell for one query.
// Feast types without instances in range are excluded, never zero-filled.
type Matrix struct {
	Cells      map[domain.CellKey]*Cell
	Years      domain.YearRange
	WindowDays int
}

// BuildMatrix aggregates windowed correlator matches into cells. The
// computation is fully deterministic: identical inputs yield identical
// cells, instances processed in ascending start-date order.
func BuildMatrix(corr *Correlator, feasts []domain.FeastInstance, eventTypes []domain.EventType, years domain.YearRange, windowDays int) (*Matrix, error) {
	if windowDays < 0 {
		return nil, domain.ErrInvalidRange
	}

	byFeastType := groupFeasts(feasts)
	feastTypes := sortedKeys(byFeastType)

	m := &Matrix{
		Cells:      make(map[domain.CellKey]*Cell),
		Years:      years,
		WindowDays: windowDays,
	}

	for _, ft := range feastTypes {
		instances := byFeastType[ft]
		for _, et := range eventTypes {
			cell, err := buildCell(corr, ft, et, instances, years, windowDays)
			if err != nil {
				return nil, err
			}
			m.Cells[cell.Key] = cell
		}
	}
	return m, nil
}

func buildCell(corr *Correlator, feastType string, eventType domain.EventType, instances []domain.FeastInstance, years domain.YearRange, windowDays int) (*Cell, error) {
	cell := &Cell{
		CorrelationCell: domain.CorrelationCell{
			Key:              domain.CellKey{FeastType: feastType, EventType: eventType},
			TotalOccurrences: len(instances),
		},
		Instances:       instances,
		InstanceMatched: make([]bool, len(instances)),
	}

	var deltas []float64
	var anchorDaysTotal int
	for i, feast := range instances {
		anchorDaysTotal += wholeDays(midnightUTC(feast.StartDate), midnightUTC(feast.EndDate)) + 1

		matches, err := corr.Query(feast.Interval(), windowDays, eventType)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			cell.InstanceMatched[i] = true
			cell.MatchCount++
		}
		for _, match := range matches {
			deltas = append(deltas, float64(match.DeltaDays))
			cell.Pairs = append(cell.Pairs, domain.CorrelationPair{
				Feast:        feast,
				Event:        match.Event,
				DeltaDays:    match.DeltaDays,
				WithinWindow: true,
			})
		}
	}

	cell.ObservedRate = float64(cell.MatchCount) / float64(cell.TotalOccurrences)
	if len(deltas) > 0 {
		cell.MeanDeltaDays = stat.Mean(deltas, nil)
	}

	// Mean anchor width across instances; multi-day feasts widen the
	// random-window comparison accordingly.
	meanAnchorDays := float64(anchorDaysTotal) / float64(len(instances))
	annualCount := annualEventCount(corr, eventType, years)
	cell.ExpectedRate = expectedRate(float64(2*windowDays)+meanAnchorDays, annualCount)

	if cell.ExpectedRate <= 0 {
		// Zero denominator: no defined strength. The cell stays in the
		// matrix with an explicit status instead of leaking a NaN.
		cell.InsufficientBaseline = true
		return cell, nil
	}

	cell.RawLift = cell.ObservedRate / cell.ExpectedRate
	cell.StrengthScore = clamp01(cell.RawLift)
	return cell, nil
}

// expectedRate estimates the probability that a random window of widthDays
// contains ≥1 event, from the type's empirical annual frequency:
//
//	1 − (1 − width/365.25)^annualCount
//
// the Poisson-process approximation, clipped to (0,1).
func expectedRate(widthDays, annualCount float64) float64 {
	if annualCount <= 0 {
		return 0
	}
	q := 1 - widthDays/daysPerYear
	if q < 0 {
		q = 0
	}
	rate := 1 - math.Pow(q, annualCount)
	if rate >= 1 {
		rate = 1 - 1e-12
	}
	return rate
}

func annualEventCount(corr *Correlator, t domain.EventType, years domain.YearRange) float64 {
	span := years.Years()
	if span == 0 {
		return 0
	}
	return float64(corr.EventCount(t)) / float64(span)
}

// PerYear rebuilds the matrix restricted to a single calendar year's feast
// instances, reusing the shared correlator index. The anomaly detector and
// forecaster consume these year slices.
func (m *Matrix) PerYear(corr *Correlator, feasts []domain.FeastInstance, eventTypes []domain.EventType, year int) (*Matrix, error) {
	var subset []domain.FeastInstance
	for _, f := range feasts {
		if f.Year == year {
			subset = append(subset, f)
		}
	}
	return BuildMatrix(corr, subset, eventTypes, domain.YearRange{From: year, To: year}, m.WindowDays)
}

// Keys returns cell keys in deterministic order.
func (m *Matrix) Keys() []domain.CellKey {
	keys := make([]domain.CellKey, 0, len(m.Cells))
	for k := range m.Cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].FeastType != keys[j].FeastType {
			return keys[i].FeastType < keys[j].FeastType
		}
		return keys[i].EventType < keys[j].EventType
	})
	return keys
}

func groupFeasts(feasts []domain.FeastInstance) map[string][]domain.FeastInstance {
	grouped := make(map[string][]domain.FeastInstance)
	for _, f := range feasts {
		grouped[f.FeastType] = append(grouped[f.FeastType], f)
	}
	for _, instances := range grouped {
		sort.Slice(instances, func(i, j int) bool {
			return instances[i].StartDate.Before(instances[j].StartDate)
		})
	}
	return grouped
}

func sortedKeys(m map[string][]domain.FeastInstance) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
