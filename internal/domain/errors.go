package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRange rejects malformed window or date parameters before any
// computation starts. Never retried.
var ErrInvalidRange = errors.New("invalid range")

// ErrUpstreamUnavailable marks a failed read from the event store or feast
// calendar. Fatal for the current request; no partial result is fabricated.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// InsufficientDataError reports a cell with too few feast occurrences for
// the significance test. Recovered locally: the cell is returned with a nil
// p-value and low_sample_size set, never surfaced as a request failure.
type InsufficientDataError struct {
	Key         CellKey
	Occurrences int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("cell %s: %d feast occurrences, need at least 3", e.Key, e.Occurrences)
}

// InsufficientBaselineError reports a zero expected-rate denominator. The
// cell is excluded from strength-bearing outputs but included with an
// explicit status.
type InsufficientBaselineError struct {
	Key CellKey
}

func (e *InsufficientBaselineError) Error() string {
	return fmt.Sprintf("cell %s: expected rate is zero, no baseline for lift", e.Key)
}
