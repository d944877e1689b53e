// Package ratelimit is a per-process sliding-window limiter keyed by
// caller and bucket. It bounds compile requests independently of the
// pipeline; nothing here knows what a compile is.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Decision is the verdict for one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Used      int
	Remaining int
	Key       string
}

// Limiter tracks request timestamps per key inside a sliding window.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// New creates a limiter with the given window. A zero window defaults
// to one minute.
func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		window: window,
		hits:   map[string][]time.Time{},
		now:    time.Now,
	}
}

// Allow records a request for caller and bucket against the limit and
// returns the decision. limit <= 0 disables limiting for the call.
func (l *Limiter) Allow(caller, bucket string, limit int) Decision {
	key := fmt.Sprintf("%s:%s", caller, bucket)
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Key: key}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.hits[key] = kept
		return Decision{Allowed: false, Limit: limit, Used: len(kept), Remaining: 0, Key: key}
	}

	kept = append(kept, now)
	l.hits[key] = kept
	return Decision{Allowed: true, Limit: limit, Used: len(kept), Remaining: limit - len(kept), Key: key}
}
