package domain

import (
	"fmt"
	"time"
)

// CellKey identifies one (feast type, event type) correlation cell.
type CellKey struct {
	FeastType string    `json:"feast_type"`
	EventType EventType `json:"event_type"`
}

func (k CellKey) String() string {
	return k.FeastType + "|" + string(k.EventType)
}

// CorrelationPair is one matched (feast instance, event) within a window.
// Ephemeral: produced per query, never persisted.
type CorrelationPair struct {
	Feast        FeastInstance `json:"feast"`
	Event        TemporalEvent `json:"event"`
	DeltaDays    int           `json:"delta_days"` // negative = event precedes the feast
	WithinWindow bool          `json:"within_window"`
}

// ConfidenceInterval is an empirical percentile range for an observed rate.
type ConfidenceInterval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// CorrelationCell aggregates the co-occurrence of one feast type with one
// event type across a year range.
type CorrelationCell struct {
	Key              CellKey `json:"key"`
	MatchCount       int     `json:"match_count"`             // feast instances with ≥1 matched event
	TotalOccurrences int     `json:"total_feast_occurrences"` // feast instances queried
	ObservedRate     float64 `json:"observed_rate"`
	ExpectedRate     float64 `json:"expected_rate"`
	MeanDeltaDays    float64 `json:"mean_delta_days"`
	StrengthScore    float64 `json:"strength_score"` // lift clipped to [0,1]
	RawLift          float64 `json:"raw_lift"`       // unclipped observed/expected

	// PValue is nil when the cell carries too few occurrences for the
	// significance test (LowSampleSize is then true).
	PValue             *float64           `json:"p_value"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`

	LowSampleSize        bool `json:"low_sample_size,omitempty"`
	InsufficientBaseline bool `json:"insufficient_baseline,omitempty"`
	Approximate          bool `json:"approximate,omitempty"`
}

// Severity grades how far an anomaly sits outside its baseline.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyFlag reports a cell whose current strength departs from its
// trailing historical baseline.
type AnomalyFlag struct {
	Key              CellKey  `json:"cell_key"`
	ObservedStrength float64  `json:"observed_strength"`
	BaselineMean     float64  `json:"baseline_mean"`
	BaselineStd      float64  `json:"baseline_std"`
	ZScore           float64  `json:"z_score"`
	Severity         Severity `json:"severity"`
}

// ClusterCentroid summarizes a pattern cluster's position in feature space.
type ClusterCentroid struct {
	MeanDeltaDays     float64   `json:"mean_delta_days"`
	DominantEventType EventType `json:"dominant_event_type"`
}

// PatternCluster groups correlation pairs discovered close together in
// (delta days, event type, strength) feature space. Members index into the
// pair slice of the owning ClusterResult, in processing order.
type PatternCluster struct {
	ID           int             `json:"cluster_id"`
	Members      []int           `json:"members"`
	Centroid     ClusterCentroid `json:"centroid"`
	DensityScore float64         `json:"density_score"`
}

// ClusterResult carries the clusters plus the deterministic pair ordering
// they index into. Noise lists pairs assigned to no cluster.
type ClusterResult struct {
	Pairs    []CorrelationPair `json:"pairs"`
	Clusters []PatternCluster  `json:"clusters"`
	Noise    []int             `json:"noise"`
}

// Forecast projects the probability of one event type co-occurring with one
// upcoming feast instance within a horizon.
type Forecast struct {
	HorizonDays          int           `json:"horizon_days"`
	Feast                FeastInstance `json:"target_feast_instance"`
	EventType            EventType     `json:"event_type"`
	PredictedProbability float64       `json:"predicted_probability"`
	ConfidenceScore      float64       `json:"confidence_score"`
	ContributingCells    []CellKey     `json:"contributing_cells"`

	// Unreliable marks a forecast attempted on a cell rejected for
	// insufficient evidence; ConfidenceScore is then 0.
	Unreliable bool `json:"unreliable,omitempty"`
}

// MatrixResult is the serializable output of a correlation matrix query.
// Cells are keyed by CellKey.String().
type MatrixResult struct {
	Cells       map[string]CorrelationCell `json:"cells"`
	Approximate bool                       `json:"approximate,omitempty"`
	ComputedAt  time.Time                  `json:"computed_at"`
}

// AnomalyResult is the serializable output of an anomaly query.
type AnomalyResult struct {
	Flags []AnomalyFlag `json:"flags"`
	// BaselineUnavailable lists cells with fewer than two prior baseline
	// years, for which no flag could be computed.
	BaselineUnavailable []CellKey `json:"baseline_unavailable,omitempty"`
	ComputedAt          time.Time `json:"computed_at"`
}

// ForecastResult is the serializable output of a forecast query.
type ForecastResult struct {
	Forecasts  []Forecast `json:"forecasts"`
	ComputedAt time.Time  `json:"computed_at"`
}

// Valid reports whether s names a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityForZ maps an absolute z-score to a severity. The boolean is false
// when the score is inside the no-flag band (|z| < 1.5).
func SeverityForZ(z float64) (Severity, bool) {
	abs := z
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 1.5:
		return "", false
	case abs < 2.5:
		return SeverityLow, true
	case abs < 4:
		return SeverityMedium, true
	case abs < 6:
		return SeverityHigh, true
	default:
		return SeverityCritical, true
	}
}

// ParseEventType validates a wire-format event type string.
func ParseEventType(s string) (EventType, error) {
	for _, t := range KnownEventTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}
