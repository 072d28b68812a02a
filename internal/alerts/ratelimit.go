package alerts

import (
	"sync"
	"time"
)

// RateWindow is the trailing window the limiter counts over.
const RateWindow = time.Hour

// RateLimiter caps the number of alerts admitted in any trailing hour. Excess
// alerts are shed, never queued.
type RateLimiter struct {
	mu       sync.Mutex
	max      int
	admitted []time.Time
	now      func() time.Time
}

// NewRateLimiter returns a limiter admitting at most max alerts per hour.
func NewRateLimiter(max int, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{max: max, now: now}
}

// SetMax changes the hourly budget.
func (r *RateLimiter) SetMax(max int) {
	r.mu.Lock()
	r.max = max
	r.mu.Unlock()
}

// TryAdmit records an admission and returns true if the budget allows it.
func (r *RateLimiter) TryAdmit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(now)
	if len(r.admitted) >= r.max {
		return false
	}
	r.admitted = append(r.admitted, now)
	return true
}

// Count returns admissions in the current window.
func (r *RateLimiter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(r.now())
	return len(r.admitted)
}

// pruneLocked drops timestamps that left the window. Timestamps are appended in
// order so the expired ones form a prefix.
func (r *RateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-RateWindow)
	i := 0
	for i < len(r.admitted) && !r.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.admitted = append(r.admitted[:0], r.admitted[i:]...)
	}
}
