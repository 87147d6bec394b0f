// Package cache provides a small TTL cache keyed by string. Entries expire
// on read, never by a background sweep, so the map grows with the number of
// distinct keys ever requested. For this service the key space is the set of
// tracked keywords, which stays small; the tradeoff is deliberate.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	now   func() time.Time
}

func New[V any]() *Cache[V] {
	return &Cache[V]{
		items: make(map[string]entry[V]),
		now:   time.Now,
	}
}

// Get returns the cached value for key if it is younger than ttl.
func (c *Cache[V]) Get(key string, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.now().Sub(e.storedAt) >= ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the current timestamp.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, storedAt: c.now()}
}

// GetOrCompute returns the cached value when it is fresh and forceRefresh is
// off; otherwise it calls compute, stores the result and returns it. compute
// runs outside the lock, so two concurrent misses for the same key may both
// recompute. That benign race costs one duplicate upstream call, which is
// cheaper than holding the lock across the network.
func (c *Cache[V]) GetOrCompute(key string, ttl time.Duration, forceRefresh bool, compute func() (V, error)) (V, error) {
	if !forceRefresh {
		if v, ok := c.Get(key, ttl); ok {
			return v, nil
		}
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// SetClock overrides the clock; tests only.
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
