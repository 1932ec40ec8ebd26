package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCache_GetRespectsTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int](time.Minute, WithClock[int](clock.Now))
	defer c.Stop()

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "item must be expired exactly at ExpiresAt")
}

func TestCache_GetStaleReturnsExpiredItems(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[string](time.Second, WithClock[string](clock.Now))
	defer c.Stop()

	c.Set("tok", "perm")
	clock.Advance(time.Hour)

	_, fresh := c.Get("tok")
	stale, ok := c.GetStale("tok")
	assert.False(t, fresh)
	assert.True(t, ok)
	assert.Equal(t, "perm", stale)

	_, ok = c.GetStale("missing")
	assert.False(t, ok)
}

func TestCache_SetOverwritesAndRefreshes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int](time.Minute, WithClock[int](clock.Now))
	defer c.Stop()

	c.Set("k", 1)
	clock.Advance(2 * time.Minute)
	c.Set("k", 2)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_PurgeOnlyDropsLongExpiredItems(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int](time.Minute, WithClock[int](clock.Now))
	defer c.Stop()

	c.Set("old", 1)
	clock.Advance(10 * time.Minute)
	c.Set("new", 2)
	clock.Advance(2 * time.Minute)

	removed := c.Purge(5 * time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := c.GetStale("old")
	assert.False(t, ok)
	_, ok = c.GetStale("new")
	assert.True(t, ok)

	stats := c.GetStats()
	assert.Equal(t, 1, stats.TotalKeys)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 0, stats.Size)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute, WithStaleWindow[int](time.Hour))
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("shared", i)
			c.Get("shared")
			c.GetStale("shared")
		}(i)
	}
	wg.Wait()

	_, ok := c.Get("shared")
	assert.True(t, ok)
	c.Stop()
	c.Stop()
}
