package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// eventTypeScale stretches the event-type axis of the feature space so that
// at the default epsilon (3.0) two pairs of different event types are never
// neighbors: identical type and small delta-day differences dominate
// neighborhood membership.
const eventTypeScale = 10.0

// ClusterInput is one correlation pair with the normalized strength of its
// parent cell.
type ClusterInput struct {
	Pair         domain.CorrelationPair
	NormStrength float64
}

// ClusterPairs groups correlation pairs with density-based clustering over
// the feature vector (delta_days, scaled event type index, normalized
// strength). Pairs are processed in a fixed order (feast start date
// ascending, then event type name, then event time, then event ID), so
// border points reachable from two clusters always join the cluster
// discovered first and repeated runs produce identical output.
func ClusterPairs(inputs []ClusterInput, epsilon float64, minPoints int) domain.ClusterResult {
	ordered := make([]ClusterInput, len(inputs))
	copy(ordered, inputs)
	sort.Slice(ordered, func(i, j int) bool { return lessInput(ordered[i], ordered[j]) })

	points := make([][3]float64, len(ordered))
	typeIndex := eventTypeIndices()
	for i, in := range ordered {
		points[i] = [3]float64{
			float64(in.Pair.DeltaDays),
			float64(typeIndex[in.Pair.Event.Type]) * eventTypeScale,
			in.NormStrength,
		}
	}

	neighbors := neighborLists(points, epsilon)

	const (
		undefined = 0
		noise     = -1
	)
	labels := make([]int, len(ordered))
	clusterID := 0

	for i := range ordered {
		if labels[i] != undefined {
			continue
		}
		// Neighborhood includes the point itself.
		if len(neighbors[i]) < minPoints {
			labels[i] = noise
			continue
		}

		clusterID++
		labels[i] = clusterID
		queue := append([]int(nil), neighbors[i]...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == noise {
				labels[j] = clusterID // border point, claimed by first cluster to reach it
				continue
			}
			if labels[j] != undefined {
				continue
			}
			labels[j] = clusterID
			if len(neighbors[j]) >= minPoints {
				queue = append(queue, neighbors[j]...)
			}
		}
	}

	result := domain.ClusterResult{
		Pairs: make([]domain.CorrelationPair, len(ordered)),
	}
	members := make(map[int][]int)
	for i, in := range ordered {
		result.Pairs[i] = in.Pair
		switch labels[i] {
		case noise:
			result.Noise = append(result.Noise, i)
		default:
			members[labels[i]] = append(members[labels[i]], i)
		}
	}

	for id := 1; id <= clusterID; id++ {
		result.Clusters = append(result.Clusters, summarizeCluster(id, members[id], ordered))
	}
	return result
}

func summarizeCluster(id int, members []int, ordered []ClusterInput) domain.PatternCluster {
	deltas := make([]float64, len(members))
	strengths := make([]float64, len(members))
	typeCounts := make(map[domain.EventType]int)
	for i, m := range members {
		deltas[i] = float64(ordered[m].Pair.DeltaDays)
		strengths[i] = ordered[m].NormStrength
		typeCounts[ordered[m].Pair.Event.Type]++
	}

	return domain.PatternCluster{
		ID:      id,
		Members: members,
		Centroid: domain.ClusterCentroid{
			MeanDeltaDays:     stat.Mean(deltas, nil),
			DominantEventType: dominantType(typeCounts),
		},
		DensityScore: stat.Mean(strengths, nil),
	}
}

// dominantType picks the most frequent member event type, breaking ties by
// name for determinism.
func dominantType(counts map[domain.EventType]int) domain.EventType {
	var best domain.EventType
	bestCount := -1
	types := make([]domain.EventType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	return best
}

func neighborLists(points [][3]float64, epsilon float64) [][]int {
	neighbors := make([][]int, len(points))
	for i := range points {
		for j := range points {
			if euclidean(points[i], points[j]) <= epsilon {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}
	return neighbors
}

func euclidean(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func eventTypeIndices() map[domain.EventType]int {
	idx := make(map[domain.EventType]int)
	for i, t := range domain.KnownEventTypes() {
		idx[t] = i
	}
	return idx
}

func lessInput(a, b ClusterInput) bool {
	if !a.Pair.Feast.StartDate.Equal(b.Pair.Feast.StartDate) {
		return a.Pair.Feast.StartDate.Before(b.Pair.Feast.StartDate)
	}
	if a.Pair.Event.Type != b.Pair.Event.Type {
		return a.Pair.Event.Type < b.Pair.Event.Type
	}
	if !a.Pair.Event.Timestamp.Equal(b.Pair.Event.Timestamp) {
		return a.Pair.Event.Timestamp.Before(b.Pair.Event.Timestamp)
	}
	return a.Pair.Event.ID < b.Pair.Event.ID
}
