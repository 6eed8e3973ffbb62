package analysis

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// mcChunk is the Monte Carlo batch size between deadline checks. Small
// enough that one batch never blows a 2s budget, large enough to keep the
// check overhead invisible.
const mcChunk = 100

// Significance runs the resampling significance test for matrix cells.
//
// The null model redraws synthetic event timestamps uniformly at random
// across the same calendar years, preserving each year's event count but not
// its placement, and recomputes the observed rate against the real feast
// instances. The RNG is seeded from the cell key and iteration count, so a
// fixed configuration reproduces bit-identical p-values.
type Significance struct {
	Iterations      int
	ConfidenceLevel int // 95 or 99
}

// Evaluate fills in PValue, ConfidenceInterval and the Approximate flag on
// the cell, returning the number of Monte Carlo iterations completed. A cell
// with fewer than 3 feast occurrences gets a nil p-value and low_sample_size
// instead; the returned *InsufficientDataError reports that condition
// without failing the request.
func (s *Significance) Evaluate(ctx context.Context, corr *Correlator, cell *Cell, years domain.YearRange, windowDays int) (int, error) {
	if cell.TotalOccurrences < 3 {
		cell.PValue = nil
		cell.LowSampleSize = true
		return 0, &domain.InsufficientDataError{Key: cell.Key, Occurrences: cell.TotalOccurrences}
	}
	if cell.InsufficientBaseline {
		// No defined strength to test against.
		cell.PValue = nil
		return 0, nil
	}

	rng := rand.New(rand.NewSource(int64(seedFor(cell.Key, s.Iterations)))) //nolint:gosec // deterministic simulation, not crypto

	yearCounts := corr.CountByYear(cell.Key.EventType, years)

	// simObserved >= observed  ⟺  simStrength >= strength, since both
	// divide by the same expected rate. Comparing rates avoids the division.
	var atLeastAsStrong, completed int
	var chunkAvg time.Duration
	deadline, hasDeadline := ctx.Deadline()

	for completed < s.Iterations {
		if ctx.Err() != nil {
			break
		}
		if hasDeadline && completed > 0 && time.Until(deadline) < chunkAvg*3/2 {
			break
		}

		chunkStart := time.Now()
		n := s.Iterations - completed
		if n > mcChunk {
			n = mcChunk
		}
		for i := 0; i < n; i++ {
			synth := drawSyntheticYear(rng, yearCounts)
			if simulatedRate(synth, cell.Instances, windowDays) >= cell.ObservedRate {
				atLeastAsStrong++
			}
		}
		completed += n
		chunkAvg = time.Since(chunkStart)
	}

	if completed == 0 {
		// Budget exhausted before a single chunk: degrade, don't block.
		cell.PValue = nil
		cell.Approximate = true
		return 0, nil
	}

	// Additive smoothing keeps the p-value off exact zero.
	p := float64(atLeastAsStrong+1) / float64(completed+1)
	cell.PValue = &p
	cell.Approximate = completed < s.Iterations
	cell.ConfidenceInterval = s.bootstrapInterval(rng, cell)
	return completed, nil
}

// bootstrapInterval resamples the per-instance match outcomes with
// replacement and takes the empirical [α/2, 1−α/2] percentiles of the
// recomputed observed rates.
func (s *Significance) bootstrapInterval(rng *rand.Rand, cell *Cell) domain.ConfidenceInterval {
	total := cell.TotalOccurrences
	rates := make([]float64, s.Iterations)
	for i := range rates {
		matched := 0
		for j := 0; j < total; j++ {
			if cell.InstanceMatched[rng.Intn(total)] {
				matched++
			}
		}
		rates[i] = float64(matched) / float64(total)
	}
	sort.Float64s(rates)

	alpha := 1 - float64(s.ConfidenceLevel)/100
	return domain.ConfidenceInterval{
		Lo: stat.Quantile(alpha/2, stat.Empirical, rates, nil),
		Hi: stat.Quantile(1-alpha/2, stat.Empirical, rates, nil),
	}
}

// drawSyntheticYear redraws each year's events uniformly across that year,
// returning sorted timestamps.
func drawSyntheticYear(rng *rand.Rand, yearCounts map[int]int) []time.Time {
	var total int
	years := make([]int, 0, len(yearCounts))
	for y, n := range yearCounts {
		years = append(years, y)
		total += n
	}
	sort.Ints(years) // map order must not leak into the RNG stream

	synth := make([]time.Time, 0, total)
	for _, y := range years {
		yearStart := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		yearLen := time.Date(y+1, 1, 1, 0, 0, 0, 0, time.UTC).Sub(yearStart)
		for i := 0; i < yearCounts[y]; i++ {
			synth = append(synth, yearStart.Add(time.Duration(rng.Int63n(int64(yearLen)))))
		}
	}
	sort.Slice(synth, func(i, j int) bool { return synth[i].Before(synth[j]) })
	return synth
}

// simulatedRate computes the fraction of feast instances whose window
// contains ≥1 synthetic timestamp.
func simulatedRate(synth []time.Time, instances []domain.FeastInstance, windowDays int) float64 {
	if len(instances) == 0 {
		return 0
	}
	matched := 0
	for _, feast := range instances {
		windowStart := feast.StartDate.AddDate(0, 0, -windowDays)
		windowEnd := feast.EndDate.AddDate(0, 0, windowDays+1)
		lo := sort.Search(len(synth), func(i int) bool { return !synth[i].Before(windowStart) })
		if lo < len(synth) && synth[lo].Before(windowEnd) {
			matched++
		}
	}
	return float64(matched) / float64(len(instances))
}

// seedFor derives the deterministic RNG seed from the cell key and the
// requested iteration count.
func seedFor(key domain.CellKey, iterations int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key.String()))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.Itoa(iterations)))
	return h.Sum64()
}
