// Package ratelimit provides in-memory sliding-window limiters.
package ratelimit

import (
	"sync"
	"time"
)

// Window is a single sliding-window limiter, used per connection.
type Window struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewWindow constructs a Window. Non-positive inputs fall back to 120 events per 10s.
func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 120
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Window{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at time "now" should be permitted.
func (r *Window) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = prune(r.events, now.Add(-r.window))
	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}

func prune(events []time.Time, cut time.Time) []time.Time {
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	return dst
}

// evaluateWindow reports whether events already fill the window at now and,
// if so, how long until the oldest one ages out.
func evaluateWindow(now time.Time, events []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	n := 0
	var oldest time.Time
	for _, t := range events {
		if !t.After(cut) {
			continue
		}
		if n == 0 || t.Before(oldest) {
			oldest = t
		}
		n++
	}
	if n < limit {
		return false, 0
	}
	retry := oldest.Add(window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return true, retry
}
