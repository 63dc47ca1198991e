package signaling

import (
	"sync"
	"time"
)

const (
	// DefaultSignalRateWindow is the fixed rate-limit window length.
	DefaultSignalRateWindow = 10 * time.Second
	// DefaultSignalRateLimit is the number of signal messages allowed per window.
	DefaultSignalRateLimit = 50
)

type rateWindow struct {
	count         int
	windowStartMs int64
}

// RateLimiter is a fixed-window counter keyed by connection id. It guards
// only the signal relay path; presence and pairing traffic is inherently
// low-frequency.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[uint64]*rateWindow
	window  time.Duration
	limit   int
}

// NewRateLimiter creates a limiter with the given window and per-window limit.
func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	return &RateLimiter{
		windows: make(map[uint64]*rateWindow),
		window:  window,
		limit:   limit,
	}
}

// Allow records one event for connID at nowMs and reports whether it is
// within the limit. The first event of a window always passes and resets the
// counter.
func (r *RateLimiter) Allow(connID uint64, nowMs int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.windows[connID]
	if !ok || nowMs-state.windowStartMs > r.window.Milliseconds() {
		r.windows[connID] = &rateWindow{count: 1, windowStartMs: nowMs}
		return true
	}

	state.count++
	return state.count <= r.limit
}

// Forget drops all state for a closed connection.
func (r *RateLimiter) Forget(connID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, connID)
}
