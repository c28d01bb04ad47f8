package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestTTLCache_GetSet(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "simple", key: "report-1.pdf", value: "/tmp/report-1.pdf"},
		{name: "empty_value", key: "k", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTTLCache[string](time.Minute)

			val, found := c.Get(tt.key)
			assert.False(t, found)
			assert.Empty(t, val)

			c.Set(tt.key, tt.value)
			val, found = c.Get(tt.key)
			assert.True(t, found)
			assert.Equal(t, tt.value, val)

			c.Set(tt.key, "overwritten")
			val, found = c.Get(tt.key)
			assert.True(t, found)
			assert.Equal(t, "overwritten", val)
		})
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	clock := newClock()
	c := NewTTLCache[int](time.Minute, WithClock[int](clock.Now))

	c.Set("a", 1)
	clock.Advance(59 * time.Second)
	_, found := c.Get("a")
	assert.True(t, found)

	clock.Advance(time.Second)
	_, found = c.Get("a")
	assert.False(t, found, "entry should expire exactly at its TTL")
}

func TestTTLCache_SetRestartsTTL(t *testing.T) {
	clock := newClock()
	c := NewTTLCache[int](time.Minute, WithClock[int](clock.Now))

	c.Set("a", 1)
	clock.Advance(45 * time.Second)
	c.Set("a", 2)
	clock.Advance(45 * time.Second)

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, 2, val)
}

func TestTTLCache_SweepCallsEvict(t *testing.T) {
	clock := newClock()
	var evicted []string
	c := NewTTLCache[string](time.Minute,
		WithClock[string](clock.Now),
		WithEvictCallback(func(key string, value string) {
			evicted = append(evicted, key+"="+value)
		}),
	)

	c.Set("old", "x")
	clock.Advance(30 * time.Second)
	c.Set("new", "y")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, []string{"old=x"}, evicted)
	assert.Equal(t, 1, c.Len())

	_, found := c.Get("new")
	assert.True(t, found)
}

func TestTTLCache_DeleteCallsEvict(t *testing.T) {
	var evicted []string
	c := NewTTLCache[string](time.Minute, WithEvictCallback(func(key string, _ string) {
		evicted = append(evicted, key)
	}))

	c.Set("a", "1")
	c.Delete("a")
	c.Delete("missing")

	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Run(t *testing.T) {
	evicted := make(chan string, 1)
	c := NewTTLCache[string](time.Millisecond, WithEvictCallback(func(key string, _ string) {
		evicted <- key
	}))
	c.Set("a", "1")

	stop := make(chan struct{})
	defer close(stop)
	go c.Run(5*time.Millisecond, stop)

	select {
	case key := <-evicted:
		assert.Equal(t, "a", key)
	case <-time.After(2 * time.Second):
		t.Fatal("entry was not swept")
	}
}

func TestTTLCache_Concurrency(t *testing.T) {
	c := NewTTLCache[int](time.Minute)
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%26))
			c.Set(key, n)
			c.Get(key)
			if n%5 == 0 {
				c.Delete(key)
			}
			c.Sweep()
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 26)
}
