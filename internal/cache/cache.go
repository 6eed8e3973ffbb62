// Package cache provides the single-flight result cache fronting the
// correlation engine. Entries are keyed by a fingerprint of the full query
// parameters, expire after a fixed TTL, and are invalidated when the
// ingestion signal reports new data for any event type a cached query
// touched.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/feast-correlation/internal/domain"
	"github.com/couchcryptid/feast-correlation/internal/observability"
)

type entry struct {
	payload    any
	computedAt time.Time
	expiresAt  time.Time
	eventTypes []domain.EventType
	// generations snapshot at compute time; a mismatch at store time means
	// an ingestion signal raced the computation and the result is already
	// stale.
	generations map[domain.EventType]uint64
}

// Cache memoizes computed aggregates with at most one concurrent
// computation per fingerprint.
type Cache struct {
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu      sync.RWMutex
	entries map[string]*entry
	gens    map[domain.EventType]uint64

	group singleflight.Group
}

// New creates a Cache with the given TTL.
func New(ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Cache {
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		entries: make(map[string]*entry),
		gens:    make(map[domain.EventType]uint64),
	}
}

// GetOrCompute returns the cached payload for fingerprint, or runs compute
// exactly once across concurrent callers and caches the result. The boolean
// reports whether the payload came from cache. A caller whose context ends
// while waiting stops immediately; the shared computation runs to completion
// for any other waiter.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, touches []domain.EventType, compute func(ctx context.Context) (any, error)) (any, bool, error) {
	if payload, ok := c.lookup(fingerprint); ok {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return payload, true, nil
	}

	// The computation must not die with the first caller: detach
	// cancellation so later joiners (and the cache) still get a result.
	computeCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(fingerprint, func() (any, error) {
		gens := c.snapshotGenerations(touches)
		payload, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}
		c.store(fingerprint, payload, touches, gens)
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			c.metrics.CacheLookups.WithLabelValues("shared").Inc()
		} else {
			c.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
		return res.Val, false, nil
	}
}

// Lookup returns the cached payload for fingerprint if present and unexpired.
func (c *Cache) Lookup(fingerprint string) (any, bool) {
	return c.lookup(fingerprint)
}

// Invalidate drops every entry whose query touched the given event type and
// bumps the type's generation so racing computations are not stored stale.
// Returns the number of entries dropped.
func (c *Cache) Invalidate(t domain.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[t]++
	dropped := 0
	for fp, e := range c.entries {
		for _, et := range e.eventTypes {
			if et == t {
				delete(c.entries, fp)
				dropped++
				break
			}
		}
	}
	if c.metrics != nil && dropped > 0 {
		c.metrics.Invalidations.Add(float64(dropped))
	}
	return dropped
}

// Len returns the number of live entries, for introspection and tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(fingerprint string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check: another caller may have refreshed the entry.
		if cur, still := c.entries[fingerprint]; still && c.clock.Now().After(cur.expiresAt) {
			delete(c.entries, fingerprint)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

func (c *Cache) store(fingerprint string, payload any, touches []domain.EventType, gens map[domain.EventType]uint64) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for t, g := range gens {
		if c.gens[t] != g {
			// Ingestion landed mid-computation; the snapshot is stale.
			return
		}
	}
	c.entries[fingerprint] = &entry{
		payload:     payload,
		computedAt:  now,
		expiresAt:   now.Add(c.ttl),
		eventTypes:  touches,
		generations: gens,
	}
}

func (c *Cache) snapshotGenerations(touches []domain.EventType) map[domain.EventType]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	gens := make(map[domain.EventType]uint64, len(touches))
	for _, t := range touches {
		gens[t] = c.gens[t]
	}
	return gens
}

// Fingerprint derives a stable cache key from the canonical string form of
// the full query parameters.
func Fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16])
}
