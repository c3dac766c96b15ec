package common

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WeightTracker follows a venue's weight-based rate limit from response
// headers so callers can back off before the venue bans the key.
type WeightTracker struct {
	mu         sync.RWMutex
	usedWeight int
	limit      int
	window     time.Duration
	lastReset  time.Time
}

// NewWeightTracker creates a tracker for limit weight units per window.
func NewWeightTracker(limit int, window time.Duration) *WeightTracker {
	return &WeightTracker{limit: limit, window: window, lastReset: time.Now()}
}

// Observe records the used-weight value reported in a response header.
func (w *WeightTracker) Observe(headerValue string) {
	if headerValue == "" {
		return
	}
	used, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.lastReset) >= w.window {
		w.usedWeight = 0
		w.lastReset = time.Now()
	}
	w.usedWeight = used

	pct := float64(w.usedWeight) / float64(w.limit) * 100
	if pct >= 90 {
		log.Printf("venue rate limit critical: %d/%d (%.1f%%)", w.usedWeight, w.limit, pct)
	}
}

// Usage returns the current used weight and limit.
func (w *WeightTracker) Usage() (used, limit int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if time.Since(w.lastReset) >= w.window {
		return 0, w.limit
	}
	return w.usedWeight, w.limit
}

// Saturated reports whether requests should be delayed.
func (w *WeightTracker) Saturated() bool {
	used, limit := w.Usage()
	return limit > 0 && float64(used)/float64(limit) >= 0.9
}

// RequestLimiter caps outbound request rate per venue connection on top of
// the header-driven tracker.
type RequestLimiter struct {
	limiter *rate.Limiter
}

// NewRequestLimiter allows rps requests per second with the given burst.
func NewRequestLimiter(rps float64, burst int) *RequestLimiter {
	return &RequestLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request slot is available or ctx is done.
func (l *RequestLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
