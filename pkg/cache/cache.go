package cache

import (
	"sync"
	"time"
)

// Item represents a cached value with expiration
type Item[V any] struct {
	Value     V
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the item has expired at the given instant
func (item Item[V]) IsExpired(now time.Time) bool {
	return !now.Before(item.ExpiresAt)
}

// Cache is a thread-safe in-memory TTL cache. Expired items stay readable
// through GetStale until the janitor purges them after the stale window.
type Cache[V any] struct {
	items       map[string]Item[V]
	mu          sync.RWMutex
	defaultTTL  time.Duration
	staleWindow time.Duration
	now         func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithClock overrides the time source
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithStaleWindow sets how long expired items are retained for stale reads.
// Zero disables the janitor entirely.
func WithStaleWindow[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) { c.staleWindow = d }
}

// New creates a new cache with default TTL
func New[V any](defaultTTL time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		items:       make(map[string]Item[V]),
		defaultTTL:  defaultTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.staleWindow > 0 {
		go c.cleanup(c.staleWindow / 2)
	}

	return c
}

// TTL returns the default time-to-live
func (c *Cache[V]) TTL() time.Duration {
	return c.defaultTTL
}

// Get returns a value only while it is fresh
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || item.IsExpired(c.now()) {
		var zero V
		return zero, false
	}
	return item.Value, true
}

// GetStale returns a value regardless of expiry, as long as it has not been
// purged yet.
func (c *Cache[V]) GetStale(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	return item.Value, exists
}

// Set stores a value with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with custom TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = Item[V]{
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// Delete removes a key from cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Purge drops items that expired more than olderThan ago and returns how
// many were removed.
func (c *Cache[V]) Purge(olderThan time.Duration) int {
	cutoff := c.now().Add(-olderThan)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.ExpiresAt.Before(cutoff) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge(c.staleWindow)
		case <-c.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// Stats holds cache statistics
type Stats struct {
	Size      int
	Expired   int
	TotalKeys int
}

// GetStats returns cache statistics
func (c *Cache[V]) GetStats() Stats {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		TotalKeys: len(c.items),
	}
	for _, item := range c.items {
		if item.IsExpired(now) {
			stats.Expired++
		}
	}
	stats.Size = stats.TotalKeys - stats.Expired
	return stats
}
