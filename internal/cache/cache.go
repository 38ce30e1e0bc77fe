// Package cache provides the TTL query cache sitting in front of expensive
// aggregate queries. Cache state is purely an optimization: correctness of a
// read never depends on cache presence, only on eventual consistency after
// the next flush, which invalidates every entry.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	value      any
	computedAt time.Time
}

// Cache maps canonical query keys (e.g. "export:7d", "summary:all") to
// computed values with a single fixed TTL.
type Cache struct {
	ttl   time.Duration
	clock quartz.Clock

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache with the given TTL.
func New(ttl time.Duration, clock quartz.Clock) *Cache {
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key if it is younger than the TTL.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.clock.Since(e.computedAt) >= c.ttl {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores a value for key, stamped with the current time.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, computedAt: c.clock.Now()}
	c.mu.Unlock()
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Concurrent callers for the same key share one computation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		// A racing caller may have stored the value while we waited.
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.clock.Since(e.computedAt) < c.ttl {
			return e.value, nil
		}

		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// InvalidateAll drops every entry. The flush worker calls this after each
// successful flush; full invalidation over selective, correctness over
// precision.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats reports lifetime hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
