package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/kubeguard/internal/guardian"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingMetrics struct {
	hits, misses, evictions, expirations, size int
}

func (m *countingMetrics) Hit()       { m.hits++ }
func (m *countingMetrics) Miss()      { m.misses++ }
func (m *countingMetrics) Evict()     { m.evictions++ }
func (m *countingMetrics) Expire()    { m.expirations++ }
func (m *countingMetrics) Size(n int) { m.size = n }

func res(score float64) guardian.Result {
	return guardian.Result{Score: score, Reason: fmt.Sprintf("score %.2f", score)}
}

func TestStore_GetPut(t *testing.T) {
	s := New(4, time.Minute)

	_, ok := s.Get("ls -la")
	assert.False(t, ok)

	s.Put("ls -la", res(0.1))
	got, ok := s.Get("ls -la")
	require.True(t, ok)
	assert.Equal(t, res(0.1), got)

	// Keys are exact text: no trimming or case folding.
	_, ok = s.Get("LS -LA")
	assert.False(t, ok)
	_, ok = s.Get("ls -la ")
	assert.False(t, ok)
}

func TestStore_ReplaceRefreshesEntry(t *testing.T) {
	clock := newFakeClock()
	s := New(2, time.Minute, WithClock(clock.Now))

	s.Put("a", res(0.1))
	clock.Advance(50 * time.Second)
	s.Put("a", res(0.9))
	clock.Advance(50 * time.Second)

	got, ok := s.Get("a")
	require.True(t, ok, "re-insert should reset the insertion time")
	assert.Equal(t, res(0.9), got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := New(2, time.Minute)

	s.Put("A", res(0.1))
	s.Put("B", res(0.2))
	s.Put("C", res(0.3))

	_, ok := s.Get("A")
	assert.False(t, ok, "A should have been evicted")
	_, ok = s.Get("B")
	assert.True(t, ok)
	_, ok = s.Get("C")
	assert.True(t, ok)
}

func TestStore_GetPromotesEntry(t *testing.T) {
	s := New(2, time.Minute)

	s.Put("A", res(0.1))
	s.Put("B", res(0.2))
	_, ok := s.Get("A")
	require.True(t, ok)

	s.Put("C", res(0.3))

	_, ok = s.Get("B")
	assert.False(t, ok, "B was least recently used after A was read")
	_, ok = s.Get("A")
	assert.True(t, ok)
}

func TestStore_CapacityInvariant(t *testing.T) {
	m := &countingMetrics{}
	s := New(10, time.Minute, WithMetrics(m))

	for i := 0; i < 250; i++ {
		s.Put(fmt.Sprintf("cmd-%d", i%37), res(0.5))
		require.LessOrEqual(t, s.Len(), s.Capacity())
	}
	assert.Equal(t, 10, s.Len())
	assert.Equal(t, 10, m.size)
	assert.Positive(t, m.evictions)
}

func TestStore_ExpiresLazilyOnRead(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	s := New(4, time.Minute, WithClock(clock.Now), WithMetrics(m))

	s.Put("nmap host", res(0.7))

	clock.Advance(time.Minute)
	_, ok := s.Get("nmap host")
	assert.True(t, ok, "entry exactly at TTL is still live")

	clock.Advance(time.Second)
	assert.Equal(t, 1, s.Len(), "expired entries occupy a slot until read")

	_, ok = s.Get("nmap host")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len(), "expired entry is removed on read")
	assert.Equal(t, 1, m.expirations)
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
}

func TestStore_ExpiredEntriesStillCountTowardCapacity(t *testing.T) {
	clock := newFakeClock()
	s := New(2, time.Second, WithClock(clock.Now))

	s.Put("old-1", res(0.1))
	s.Put("old-2", res(0.2))
	clock.Advance(time.Hour)

	s.Put("new", res(0.3))
	assert.Equal(t, 2, s.Len())

	_, ok := s.Get("new")
	assert.True(t, ok)
}

func TestStore_Defaults(t *testing.T) {
	s := New(0, 0)
	assert.Equal(t, DefaultCapacity, s.Capacity())
	assert.Equal(t, DefaultTTL, s.TTL())
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("ls"), Fingerprint("ls"))
	assert.NotEqual(t, Fingerprint("ls"), Fingerprint("ls "))
	assert.Len(t, Fingerprint(""), 64)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("cmd-%d", (g*31+i)%120)
				if _, ok := s.Get(key); !ok {
					s.Put(key, res(float64(i%10)/10))
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 50)
}
