// Package limiter implements admission control for concurrent audio streams:
// a process-wide cap and a per-user cap, each optional.
package limiter

import (
	"errors"
	"sync"
)

var (
	// ErrGlobalLimit is returned when the process-wide stream cap is reached.
	ErrGlobalLimit = errors.New("global concurrent stream limit reached")

	// ErrUserLimit is returned when the caller's per-user stream cap is reached.
	ErrUserLimit = errors.New("per-user concurrent stream limit reached")
)

// Config holds the caps. Zero (or a negative value) means unlimited.
type Config struct {
	GlobalMax  int
	PerUserMax int
}

// Limiter counts in-flight streams globally and per user key.
//
// Counters are always maintained, also for unlimited caps, so every successful
// TryEnter is undone by exactly one Exit. A per-user entry is dropped when its
// count returns to zero, which keeps the map proportional to the users that
// currently stream.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	global  int
	perUser map[string]int
}

// New returns a Limiter with the given caps.
func New(cfg Config) *Limiter {
	if cfg.GlobalMax < 0 {
		cfg.GlobalMax = 0
	}
	if cfg.PerUserMax < 0 {
		cfg.PerUserMax = 0
	}
	return &Limiter{cfg: cfg, perUser: make(map[string]int)}
}

// Config returns the caps the limiter was built with.
func (l *Limiter) Config() Config {
	return l.cfg
}

// TryEnter takes a slot for userKey. It returns false, and changes nothing,
// when either cap would be exceeded.
func (l *Limiter) TryEnter(userKey string) bool {
	return l.enter(userKey) == nil
}

// Exit releases a slot previously taken by a successful TryEnter for the same
// userKey. Exit for a userKey that holds no slot is a no-op, so counters
// never go negative.
func (l *Limiter) Exit(userKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.perUser[userKey]
	if !ok {
		return
	}
	l.global--
	if n <= 1 {
		delete(l.perUser, userKey)
		return
	}
	l.perUser[userKey] = n - 1
}

// Acquire is the scoped form of TryEnter. On success it returns a release
// function that must run on every exit path; calling it more than once has
// no further effect. On rejection the error is ErrGlobalLimit or ErrUserLimit.
func (l *Limiter) Acquire(userKey string) (release func(), err error) {
	if err := l.enter(userKey); err != nil {
		return func() {}, err
	}
	var once sync.Once
	return func() { once.Do(func() { l.Exit(userKey) }) }, nil
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global
}

// ActiveFor returns the number of slots currently held by userKey.
func (l *Limiter) ActiveFor(userKey string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perUser[userKey]
}

// Users returns the number of user keys that currently hold a slot.
func (l *Limiter) Users() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perUser)
}

func (l *Limiter) enter(userKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.GlobalMax > 0 && l.global >= l.cfg.GlobalMax {
		return ErrGlobalLimit
	}
	n := l.perUser[userKey]
	if l.cfg.PerUserMax > 0 && n >= l.cfg.PerUserMax {
		return ErrUserLimit
	}

	l.global++
	l.perUser[userKey] = n + 1
	return nil
}
