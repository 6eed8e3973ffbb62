// Package domain models the data exchanged between the correlation engine
// and its collaborators.
//
// # Data Sources
//
// Temporal events (earthquakes, volcanic eruptions, near-Earth-object
// approaches, solar events) arrive from an external event store, already
// ingested and sorted by timestamp. Feast instances arrive from an external
// calendar collaborator with Gregorian start/end dates fully resolved;
// this service never computes feast dates itself.
//
// # Matching Conventions
//
// Window:
//
//	An event matches a feast instance when its timestamp falls inside
//	[start − W days, end + W days], where W is the configured window width.
//	Single-day feasts have end == start. Delta days are measured from the
//	nearest anchor boundary, signed (negative = event precedes the feast),
//	and zero for events inside a multi-day feast interval.
//
// Strength:
//
//	The strength score of a (feast type, event type) cell is the lift of the
//	observed co-occurrence rate over the rate expected if events were placed
//	independently of the calendar, clipped to [0,1] for display. The
//	unclipped lift is retained on the cell.
//
// Severity:
//
//	Anomaly severity follows a four-level scale (low, medium, high,
//	critical) derived from the z-score of the current strength against a
//	trailing multi-year baseline:
//
//	  |z| < 1.5 none | < 2.5 low | < 4 medium | < 6 high | ≥ 6 critical
//
// # Determinism
//
// Identical queries must produce identical aggregates. All randomized
// computation (Monte Carlo significance, bootstrap intervals) derives its
// seed from the cell key and iteration count, never from wall-clock time.
package domain
