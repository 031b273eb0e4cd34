package cache

import (
	"context"
	"time"
)

// NowPlaying is the live state of one playback session.
type NowPlaying struct {
	SessionKey      string    `json:"sessionKey"`
	User            string    `json:"user"`
	Client          string    `json:"client,omitempty"`
	TrackID         string    `json:"trackId"`
	Title           string    `json:"title,omitempty"`
	PositionSeconds int       `json:"positionSeconds"`
	StartedAt       time.Time `json:"startedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SessionKey builds the identity of a playback session from the user and the
// client (player) reporting it.
func SessionKey(user, client string) string {
	return user + "|" + client
}

// NowPlayingCache holds the sessions currently playing, keyed by session key.
type NowPlayingCache struct {
	c   *Bounded[string, NowPlaying]
	now func() time.Time
}

// NewNowPlayingCache returns a now-playing cache bounded by opts.
func NewNowPlayingCache(opts Options) *NowPlayingCache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &NowPlayingCache{c: NewBounded[string, NowPlaying](opts), now: now}
}

// AddOrUpdate records info for sessionKey. A repeat call for the same session
// replaces the track and position but keeps StartedAt while the track is
// unchanged. It reports false for an empty session key.
func (n *NowPlayingCache) AddOrUpdate(sessionKey string, info NowPlaying) bool {
	if sessionKey == "" {
		return false
	}
	now := n.now()
	n.c.Upsert(sessionKey, func(prev NowPlaying, exists bool) NowPlaying {
		info.SessionKey = sessionKey
		info.UpdatedAt = now
		switch {
		case exists && prev.TrackID == info.TrackID && !prev.StartedAt.IsZero():
			info.StartedAt = prev.StartedAt
		case info.StartedAt.IsZero():
			info.StartedAt = now
		}
		return info
	})
	return true
}

// Current returns the live sessions, most recently updated first.
func (n *NowPlayingCache) Current() []NowPlaying {
	vals := n.c.Values()
	for i, j := 0, len(vals)-1; i < j; i, j = i+1, j-1 {
		vals[i], vals[j] = vals[j], vals[i]
	}
	return vals
}

// Remove drops one session.
func (n *NowPlayingCache) Remove(sessionKey string) bool {
	return n.c.Delete(sessionKey)
}

// Clear drops every session.
func (n *NowPlayingCache) Clear() { n.c.Clear() }

// Len returns the number of stored sessions.
func (n *NowPlayingCache) Len() int { return n.c.Len() }

// Stats returns entry and eviction counters.
func (n *NowPlayingCache) Stats() Stats { return n.c.Stats() }

// Run sweeps expired sessions every interval until ctx is done.
func (n *NowPlayingCache) Run(ctx context.Context, interval time.Duration) {
	n.c.Run(ctx, interval)
}
