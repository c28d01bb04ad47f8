package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a concurrent-safe in-memory store whose entries expire after a
// fixed time-to-live. An optional callback runs for every evicted entry.
type TTLCache[V any] struct {
	mu      sync.Mutex
	items   map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
	onEvict func(key string, value V)
}

// Option configures a TTLCache.
type Option[V any] func(*TTLCache[V])

// WithEvictCallback registers fn to run after an entry expires or is deleted.
func WithEvictCallback[V any](fn func(key string, value V)) Option[V] {
	return func(c *TTLCache[V]) { c.onEvict = fn }
}

// WithClock overrides the time source.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *TTLCache[V]) { c.now = now }
}

// NewTTLCache creates a cache whose entries live for ttl.
func NewTTLCache[V any](ttl time.Duration, opts ...Option[V]) *TTLCache[V] {
	c := &TTLCache[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a live value from the cache.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found || !c.now().Before(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set adds or replaces a value, restarting its time-to-live.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete removes a value from the cache.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	item, found := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()

	if found && c.onEvict != nil {
		c.onEvict(key, item.value)
	}
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep removes expired entries and returns how many were evicted.
func (c *TTLCache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	var evicted []string
	values := make(map[string]V)
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			evicted = append(evicted, key)
			values[key] = item.value
			delete(c.items, key)
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, key := range evicted {
			c.onEvict(key, values[key])
		}
	}
	return len(evicted)
}

// Run sweeps every interval until stop is closed.
func (c *TTLCache[V]) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
