package users

import (
	"sync"
	"time"
)

// maxTrackedKeys bounds the hit cache; past it a sweep drops keys idle for
// two windows.
const maxTrackedKeys = 10000

// RateLimiter counts hits per key over a sliding window. A token bucket
// refills continuously; the interaction cap here is a hard per-window
// count, so the limiter keeps the actual hit timestamps instead.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[int64][]time.Time

	now func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		hits:   map[int64][]time.Time{},
		now:    time.Now,
	}
}

// Configure swaps the limits. Recorded hits keep counting against the new
// window.
func (l *RateLimiter) Configure(limit int, window time.Duration) {
	if limit <= 0 || window <= 0 {
		return
	}
	l.mu.Lock()
	l.limit = limit
	l.window = window
	l.mu.Unlock()
}

// Allow records a hit for key and reports whether it stays under the limit.
// Denied hits are not recorded, so a throttled user recovers as soon as the
// window slides past their burst.
func (l *RateLimiter) Allow(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, at := range l.hits[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)

	if len(l.hits) > maxTrackedKeys {
		l.sweep(now)
	}
	return true
}

// sweep drops keys whose newest hit is older than two windows. Lock held by
// the caller. Appends are chronological, so the last element is the newest.
func (l *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-2 * l.window)
	for key, hs := range l.hits {
		if len(hs) == 0 || hs[len(hs)-1].Before(cutoff) {
			delete(l.hits, key)
		}
	}
}
