package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used by callers that have no configured expiry.
const DefaultTTL = time.Hour

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory key/value store with per-entry TTL. Its single job
// is compute-once-reuse-until-expiry: a live entry short-circuits the
// compute function, a miss runs it and stores the result. Concurrent
// misses on one key are collapsed to a single compute via singleflight.
//
// Failed computes are never stored, so the next caller retries.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	sf      singleflight.Group

	nowFunc func() time.Time
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// GetOrCompute returns the live value for key, or runs compute, stores its
// result for ttl, and returns it. A canceled context or a compute error
// leaves the cache untouched.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have
		// stored the value while we waited.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns the live value for key, if any.
func (c *Cache) Get(key string) (any, bool) {
	return c.get(key)
}

// Delete removes an entry regardless of expiry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.nowFunc().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.nowFunc().Add(ttl)}
	c.mu.Unlock()
}
