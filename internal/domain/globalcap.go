package domain

import (
	"sync"
	"time"
)

// GlobalCapGuard enforces a single service-wide daily ceiling across
// all anonymous callers. It protects aggregate spend regardless of
// per-caller fairness, so it is checked before the per-caller quota: a
// globally exhausted budget rejects every anonymous caller uniformly.
type GlobalCapGuard struct {
	mu       sync.Mutex
	count    int
	resetDay string
	limit    int
	clock    Clock
}

// NewGlobalCapGuard creates a guard with the given daily limit.
func NewGlobalCapGuard(limit int, clock Clock) *GlobalCapGuard {
	if clock == nil {
		clock = time.Now
	}
	return &GlobalCapGuard{
		limit: limit,
		clock: clock,
	}
}

// Check reports whether the service-wide cap is exhausted, resetting
// the counter first if a new calendar day has started.
func (g *GlobalCapGuard) Check() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()
	return g.count >= g.limit
}

// Increment bumps the service-wide counter.
func (g *GlobalCapGuard) Increment() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()
	g.count++
}

// Count returns the current counter value, for reporting.
func (g *GlobalCapGuard) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()
	return g.count
}

func (g *GlobalCapGuard) rolloverLocked() {
	today := DayKey(g.clock())
	if g.resetDay != today {
		g.resetDay = today
		g.count = 0
	}
}
