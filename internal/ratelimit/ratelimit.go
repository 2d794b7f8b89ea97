// Package ratelimit suppresses duplicate notifications per alert key.
//
// This is a per-key cooldown (one send per window for the same key), not a
// throughput limiter. Each key owns a token bucket with burst 1 that refills
// once per window; a send drains the bucket. Keys never expire: the map
// grows for the life of the process, which is acceptable for a single
// long-running instance with a bounded alert-title vocabulary.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultWindow is the cooldown between sends for the same key.
const DefaultWindow = 5 * time.Minute

type entry struct {
	limiter   *rate.Limiter
	sentCount int
	lastSent  time.Time
}

// Limiter tracks per-key send cooldowns.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	nowFn   func() time.Time
	entries map[string]*entry
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.nowFn = now }
}

// New creates a Limiter with the given cooldown window.
// A non-positive window falls back to DefaultWindow.
func New(window time.Duration, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		window:  window,
		nowFn:   time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) entryLocked(key string) *entry {
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.window), 1)}
		l.entries[key] = e
	}
	return e
}

// IsLimited reports whether a send for key happened within the window.
// It does not consume the key's token.
func (l *Limiter) IsLimited(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entryLocked(key).limiter.TokensAt(l.nowFn()) < 1
}

// RecordSend marks a send for key, starting its cooldown.
func (l *Limiter) RecordSend(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(key)
}

func (l *Limiter) recordLocked(key string) {
	e := l.entryLocked(key)
	now := l.nowFn()
	e.limiter.AllowN(now, 1)
	e.sentCount++
	e.lastSent = now
}

// SentCount returns how many sends were recorded for key.
func (l *Limiter) SentCount(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e.sentCount
	}
	return 0
}

// Status summarizes tracked keys, grouped by channel prefix.
type Status struct {
	TotalKeys int            `json:"total_keys"`
	ByPrefix  map[string]int `json:"by_prefix"`
}

// Status reports the tracked-key population.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{TotalKeys: len(l.entries), ByPrefix: make(map[string]int)}
	for k := range l.entries {
		prefix := "other"
		if i := strings.IndexByte(k, '_'); i > 0 {
			prefix = k[:i]
		}
		st.ByPrefix[prefix]++
	}
	return st
}
