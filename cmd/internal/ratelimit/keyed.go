package ratelimit

import (
	"sync"
	"time"
)

// Keyed is a sliding-window limiter per key (client IP for login attempts).
type Keyed struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
}

// NewKeyed constructs a Keyed limiter. A non-positive limit disables it.
func NewKeyed(limit int, window time.Duration) *Keyed {
	return &Keyed{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records an attempt for key at now, unless the window is full.
// When refused it returns how long the caller should wait.
func (k *Keyed) Allow(key string, now time.Time) (bool, time.Duration) {
	if k == nil || k.limit <= 0 || k.window <= 0 {
		return true, 0
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	events := prune(k.hits[key], now.Add(-k.window))
	if blocked, retry := evaluateWindow(now, events, k.limit, k.window); blocked {
		k.hits[key] = events
		return false, retry
	}
	k.hits[key] = append(events, now)
	return true, 0
}

// Sweep drops keys with no events inside the window at now.
func (k *Keyed) Sweep(now time.Time) int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	cut := now.Add(-k.window)
	n := 0
	for key, events := range k.hits {
		if events = prune(events, cut); len(events) == 0 {
			delete(k.hits, key)
			n++
			continue
		}
		k.hits[key] = events
	}
	return n
}
