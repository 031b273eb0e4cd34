package cache

import (
	"context"
	"time"
)

// ETagCache maps a resource key to its last computed entity tag.
type ETagCache struct {
	c *Bounded[string, string]
}

// NewETagCache returns an ETag cache bounded by opts.
func NewETagCache(opts Options) *ETagCache {
	return &ETagCache{c: NewBounded[string, string](opts)}
}

// Get returns the cached tag for key. An empty key is always a miss.
func (e *ETagCache) Get(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	return e.c.Get(key)
}

// Put stores etag under key and reports whether it was stored. Both key and
// etag must be non-empty.
func (e *ETagCache) Put(key, etag string) bool {
	if key == "" || etag == "" {
		return false
	}
	e.c.Set(key, etag)
	return true
}

// Remove drops the tag for key.
func (e *ETagCache) Remove(key string) {
	e.c.Delete(key)
}

// Len returns the number of stored tags.
func (e *ETagCache) Len() int { return e.c.Len() }

// Stats returns entry and eviction counters.
func (e *ETagCache) Stats() Stats { return e.c.Stats() }

// Sweep removes expired tags.
func (e *ETagCache) Sweep() int { return e.c.Sweep() }

// Run sweeps expired tags every interval until ctx is done.
func (e *ETagCache) Run(ctx context.Context, interval time.Duration) {
	e.c.Run(ctx, interval)
}
