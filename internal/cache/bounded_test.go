package cache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestBounded_set_get_update(t *testing.T) {
	c := NewBounded[string, int](Options{MaxEntries: 10})

	c.Set("a", 1)
	c.Set("a", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len(), "repeat writes must not duplicate")

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 0, c.Len())
}

func TestBounded_capacity_evicts_to_retain_ratio(t *testing.T) {
	var evicted int
	c := NewBounded[string, int](Options{
		MaxEntries: 10,
		OnEvict: func(reason EvictReason, n int) {
			if reason == ReasonCapacity {
				evicted += n
			}
		},
	})

	for i := 0; i < 10; i++ {
		c.Set(strconv.Itoa(i), i)
	}
	assert.Equal(t, 10, c.Len(), "at capacity, nothing evicted yet")

	c.Set("10", 10)
	assert.Equal(t, 8, c.Len(), "one overflow shrinks to 80%")
	assert.Equal(t, 3, evicted)

	_, ok := c.Get("0")
	assert.False(t, ok, "oldest entries go first")
	_, ok = c.Get("10")
	assert.True(t, ok, "newest entry survives")

	c.Set("11", 11)
	c.Set("12", 12)
	assert.Equal(t, 10, c.Len(), "inserts below the cap do not evict")
	assert.EqualValues(t, 3, c.Stats().Evictions)
}

func TestBounded_update_moves_entry_to_newest(t *testing.T) {
	c := NewBounded[string, int](Options{MaxEntries: 3})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Set("a", 10)
	c.Set("d", 4)

	_, ok := c.Get("a")
	assert.True(t, ok, "recently rewritten entry should survive eviction")
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestBounded_single_entry_capacity(t *testing.T) {
	c := NewBounded[int, int](Options{MaxEntries: 1})
	for i := 0; i < 5; i++ {
		c.Set(i, i)
		assert.LessOrEqual(t, c.Len(), 1)
	}
}

func TestBounded_unbounded_when_zero(t *testing.T) {
	c := NewBounded[int, int](Options{})
	for i := 0; i < 5000; i++ {
		c.Set(i, i)
	}
	assert.Equal(t, 5000, c.Len())
	assert.Zero(t, c.Stats().Evictions)
}

func TestBounded_expiry(t *testing.T) {
	clock := newFakeClock()
	c := NewBounded[string, string](Options{MaxAge: time.Minute, Now: clock.Now})

	c.Set("k", "v")
	clock.Advance(59 * time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entry is a miss even before a sweep")
	assert.Empty(t, c.Values())

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
	assert.EqualValues(t, 1, c.Stats().Expirations)
}

func TestBounded_write_refreshes_age(t *testing.T) {
	clock := newFakeClock()
	c := NewBounded[string, string](Options{MaxAge: time.Minute, Now: clock.Now})

	c.Set("k", "v1")
	clock.Advance(50 * time.Second)
	c.Set("k", "v2")
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok, "rewrite should reset the entry age")
	assert.Equal(t, "v2", v)
}

func TestBounded_writes_sweep_in_batches(t *testing.T) {
	clock := newFakeClock()
	c := NewBounded[int, int](Options{MaxAge: time.Minute, SweepBatch: 4, Now: clock.Now})

	for i := 0; i < 10; i++ {
		c.Set(i, i)
	}
	clock.Advance(2 * time.Minute)

	c.Set(100, 100)
	assert.Equal(t, 7, c.Len(), "one write removes at most SweepBatch expired entries")
	c.Set(101, 101)
	c.Set(102, 102)
	assert.Equal(t, 3, c.Len())
}

func TestBounded_upsert_sees_previous(t *testing.T) {
	clock := newFakeClock()
	c := NewBounded[string, int](Options{MaxAge: time.Minute, Now: clock.Now})

	inc := func(prev int, exists bool) int {
		if !exists {
			return 1
		}
		return prev + 1
	}
	c.Upsert("n", inc)
	c.Upsert("n", inc)
	v, _ := c.Get("n")
	assert.Equal(t, 2, v)

	clock.Advance(time.Hour)
	c.Upsert("n", inc)
	v, _ = c.Get("n")
	assert.Equal(t, 1, v, "expired entries are not handed to Upsert")
}

func TestBounded_Clear(t *testing.T) {
	c := NewBounded[int, int](Options{MaxEntries: 10})
	c.Set(1, 1)
	c.Set(2, 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	c.Set(3, 3)
	assert.Equal(t, []int{3}, c.Values())
}

func TestBounded_concurrent_access(t *testing.T) {
	c := NewBounded[int, int](Options{MaxEntries: 100, MaxAge: time.Hour})

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := g*1000 + i
				c.Set(k, i)
				c.Get(k - 1)
				if i%100 == 0 {
					c.Values()
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}

func TestBounded_Run_stops_with_context(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := newFakeClock()
	c := NewBounded[string, int](Options{MaxAge: time.Second, Now: clock.Now})
	c.Set("a", 1)
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func BenchmarkBounded_SetAtCapacity(b *testing.B) {
	c := NewBounded[int, int](Options{MaxEntries: 10000})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(i, i)
	}
}

func TestBounded_Sweep_in_batches_removes_everything(t *testing.T) {
	clock := newFakeClock()
	var notified []int
	c := NewBounded[int, int](Options{
		MaxAge:     time.Minute,
		SweepBatch: 4,
		Now:        clock.Now,
		OnEvict: func(reason EvictReason, n int) {
			if reason == ReasonExpired {
				notified = append(notified, n)
			}
		},
	})
	for i := 0; i < 10; i++ {
		c.Set(i, i)
	}
	clock.Advance(2 * time.Minute)
	c.Set(100, 100)
	notified = nil

	assert.Equal(t, 6, c.Sweep(), "sweep continues past one batch")
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []int{6}, notified)

	for i := 0; i < 8; i++ {
		c.Set(i, i)
	}
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 9, c.Sweep(), "several batches in one call")
	assert.Equal(t, 0, c.Len())
}
