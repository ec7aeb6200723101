package domain

import (
	"sync"
	"time"
)

const burstWindow = 60 * time.Second

// BurstGuard caps per-IP request rate over a sliding 60-second window.
// It is independent of the daily quota: it blunts rapid-fire bursts
// that would otherwise drain the remaining daily headroom in a fraction
// of a second or hammer the downstream AI provider.
type BurstGuard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	clock   Clock
}

// NewBurstGuard creates a guard allowing limit requests per IP per minute.
func NewBurstGuard(limit int, clock Clock) *BurstGuard {
	if clock == nil {
		clock = time.Now
	}
	return &BurstGuard{
		windows: make(map[string][]time.Time),
		limit:   limit,
		clock:   clock,
	}
}

// Check prunes the IP's window to the trailing 60 seconds and reports
// whether the burst limit is exceeded.
func (g *BurstGuard) Check(ip string) bool {
	cutoff := g.clock().Add(-burstWindow)

	g.mu.Lock()
	defer g.mu.Unlock()

	window := g.windows[ip]
	pruned := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	if len(pruned) == 0 {
		delete(g.windows, ip)
	} else {
		g.windows[ip] = pruned
	}

	return len(pruned) >= g.limit
}

// Record appends the current instant to the IP's window.
func (g *BurstGuard) Record(ip string) {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.windows[ip] = append(g.windows[ip], now)
}
