// Package cache provides the bounded in-memory caches that sit on the
// delivery hot path: entity tags for conditional responses and live
// now-playing sessions. Nothing here is persisted.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// EvictReason says why entries left a cache.
type EvictReason string

const (
	ReasonCapacity EvictReason = "capacity"
	ReasonExpired  EvictReason = "expired"
)

const (
	defaultRetainRatio = 0.8
	defaultSweepBatch  = 64
)

// Options configures a Bounded cache.
type Options struct {
	// MaxEntries caps the number of entries. Zero means unbounded.
	MaxEntries int
	// MaxAge is how long an entry lives after its last write. Zero disables expiry.
	MaxAge time.Duration
	// RetainRatio is the share of MaxEntries kept after a capacity eviction
	// (default 0.8), so one eviction pass makes room for many inserts.
	RetainRatio float64
	// SweepBatch bounds how many expired entries a single write removes.
	SweepBatch int
	// Now overrides the clock; tests use it to move time.
	Now func() time.Time
	// OnEvict, if set, is called outside the lock after entries were removed.
	OnEvict func(reason EvictReason, n int)
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Entries     int
	Evictions   uint64
	Expirations uint64
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	createdAt time.Time
	updatedAt time.Time
}

// Bounded is a map with a size cap and an age limit. Entries are kept in
// write order (front is the least recently written), so both capacity
// eviction and expiry only ever look at the front of the list.
type Bounded[K comparable, V any] struct {
	opts Options

	mu          sync.RWMutex
	items       map[K]*list.Element
	order       *list.List
	evictions   uint64
	expirations uint64
}

// NewBounded returns an empty cache configured by opts.
func NewBounded[K comparable, V any](opts Options) *Bounded[K, V] {
	if opts.MaxEntries < 0 {
		opts.MaxEntries = 0
	}
	if opts.MaxAge < 0 {
		opts.MaxAge = 0
	}
	if opts.RetainRatio <= 0 || opts.RetainRatio >= 1 {
		opts.RetainRatio = defaultRetainRatio
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = defaultSweepBatch
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bounded[K, V]{
		opts:  opts,
		items: make(map[K]*list.Element),
		order: list.New(),
	}
}

// Get returns the value for key. Entries past MaxAge are reported as missing
// even before a sweep removes them.
func (c *Bounded[K, V]) Get(key K) (V, bool) {
	now := c.opts.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e, now) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, refreshing the entry's timestamp if it exists.
func (c *Bounded[K, V]) Set(key K, value V) {
	c.Upsert(key, func(V, bool) V { return value })
}

// Upsert stores fn(previous, exists) under key. previous is the zero value
// when the key is absent or expired. fn runs under the write lock and must
// not call back into the cache.
func (c *Bounded[K, V]) Upsert(key K, fn func(prev V, exists bool) V) {
	now := c.opts.Now()

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		if c.expired(e, now) {
			var zero V
			e.value = fn(zero, false)
			e.createdAt = now
		} else {
			e.value = fn(e.value, true)
		}
		e.updatedAt = now
		c.order.MoveToBack(el)
	} else {
		var zero V
		e := &entry[K, V]{key: key, value: fn(zero, false), createdAt: now, updatedAt: now}
		c.items[key] = c.order.PushBack(e)
	}
	expired := c.sweepLocked(now, c.opts.SweepBatch)
	evicted := c.shrinkLocked()
	c.mu.Unlock()

	c.notify(ReasonExpired, expired)
	c.notify(ReasonCapacity, evicted)
}

// Delete removes key and reports whether it was present.
func (c *Bounded[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Values returns the live values, least recently written first.
func (c *Bounded[K, V]) Values() []V {
	now := c.opts.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]V, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if c.expired(e, now) {
			continue
		}
		out = append(out, e.value)
	}
	return out
}

// Len returns the number of stored entries, including expired entries that
// have not been swept yet.
func (c *Bounded[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear drops every entry.
func (c *Bounded[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Sweep removes all expired entries and returns how many were removed. It
// works in SweepBatch sized steps and releases the lock between them, so
// readers are never held up for a whole pass.
func (c *Bounded[K, V]) Sweep() int {
	now := c.opts.Now()

	total := 0
	for {
		c.mu.Lock()
		n := c.sweepLocked(now, c.opts.SweepBatch)
		c.mu.Unlock()

		total += n
		if n < c.opts.SweepBatch {
			break
		}
	}
	c.notify(ReasonExpired, total)
	return total
}

// Run sweeps expired entries every interval until ctx is done. It is an
// optional complement to the sweeping that writes already do.
func (c *Bounded[K, V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || c.opts.MaxAge <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stats returns the current entry count and lifetime removal counters.
func (c *Bounded[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:     len(c.items),
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

func (c *Bounded[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return c.opts.MaxAge > 0 && now.Sub(e.updatedAt) >= c.opts.MaxAge
}

// sweepLocked removes expired entries from the front, at most limit of them
// (limit <= 0 means no limit). Caller must hold c.mu in write mode.
func (c *Bounded[K, V]) sweepLocked(now time.Time, limit int) int {
	if c.opts.MaxAge <= 0 {
		return 0
	}
	n := 0
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if limit > 0 && n >= limit {
			break
		}
		if !c.expired(el.Value.(*entry[K, V]), now) {
			break
		}
		c.removeLocked(el)
		n++
	}
	c.expirations += uint64(n)
	return n
}

// shrinkLocked evicts the oldest entries once the cache is over capacity,
// down to MaxEntries*RetainRatio. Caller must hold c.mu in write mode.
func (c *Bounded[K, V]) shrinkLocked() int {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return 0
	}
	target := int(float64(c.opts.MaxEntries) * c.opts.RetainRatio)
	if target >= c.opts.MaxEntries {
		target = c.opts.MaxEntries - 1
	}
	if target < 1 {
		target = 1
	}
	n := 0
	for len(c.items) > target {
		el := c.order.Front()
		if el == nil {
			break
		}
		c.removeLocked(el)
		n++
	}
	c.evictions += uint64(n)
	return n
}

func (c *Bounded[K, V]) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
}

func (c *Bounded[K, V]) notify(reason EvictReason, n int) {
	if n > 0 && c.opts.OnEvict != nil {
		c.opts.OnEvict(reason, n)
	}
}
