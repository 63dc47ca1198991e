package clip

import (
	"sync"
	"time"
)

// DefaultSuppressWindow is how long a remote apply suppresses local change
// detection. Applying a remote clip writes the local clipboard, and the
// watcher would otherwise re-broadcast that write as a fresh local change.
const DefaultSuppressWindow = 500 * time.Millisecond

// LoopGuard prevents clipboard events from echoing between paired devices.
// It combines a time window around remote applies with a bounded set of
// already-seen event ids.
type LoopGuard struct {
	mu            sync.Mutex
	suppressUntil time.Time
	seen          *LRUSet
}

// NewLoopGuard creates a guard with the default seen-set capacity.
func NewLoopGuard() *LoopGuard {
	return &LoopGuard{seen: NewLRUSet(DefaultSeenCapacity)}
}

// MarkRemoteApplied suppresses local change detection for the given window
// starting at now.
func (g *LoopGuard) MarkRemoteApplied(window time.Duration, now time.Time) {
	if window <= 0 {
		window = DefaultSuppressWindow
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	until := now.Add(window)
	if until.After(g.suppressUntil) {
		g.suppressUntil = until
	}
}

// ShouldSuppressLocal reports whether a local change at now falls inside the
// suppression window opened by a recent remote apply.
func (g *LoopGuard) ShouldSuppressLocal(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return now.Before(g.suppressUntil)
}

// HasSeen reports whether the event id was already processed.
func (g *LoopGuard) HasSeen(eventID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Has(eventID)
}

// Remember records an event id as processed.
func (g *LoopGuard) Remember(eventID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen.Add(eventID)
}
