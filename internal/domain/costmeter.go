package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adaptiva/adaptiva-api/internal/observability"
)

const (
	tokensToPerK   = 1000.0
	dollarsToCents = 100.0
)

type costEntry struct {
	day       string
	costCents float64
	requests  int
}

// CostMeter tracks actual monetary spend of metered AI calls per IP and
// calendar day, in fractional cents. It runs on a track parallel to the
// request-count quota: a cheap pre-flight estimate gate before the
// downstream call, then a precise true-up once real token counts are
// known. A failed call records nothing, so the estimate is never itself
// persisted as spend.
type CostMeter struct {
	mu              sync.Mutex
	usage           map[string]*costEntry
	pricing         PricingRegistry
	defaultModel    string
	dailyLimitCents float64
	metrics         *observability.Metrics
	clock           Clock
}

// NewCostMeter creates a meter over the given pricing registry.
func NewCostMeter(
	pricing PricingRegistry,
	defaultModel string,
	dailyLimitCents float64,
	metrics *observability.Metrics,
	clock Clock,
) *CostMeter {
	if clock == nil {
		clock = time.Now
	}
	return &CostMeter{
		usage:           make(map[string]*costEntry),
		pricing:         pricing,
		defaultModel:    defaultModel,
		dailyLimitCents: dailyLimitCents,
		metrics:         metrics,
		clock:           clock,
	}
}

// EstimateCents prices a token count against the model's per-1K rates,
// in cents. Unknown models fall back to the default model's entry
// rather than failing.
func (m *CostMeter) EstimateCents(model string, inputTokens, outputTokens int) float64 {
	ctx := context.Background()

	rates, err := m.pricing.GetPricing(ctx, model)
	if err != nil {
		rates, err = m.pricing.GetPricing(ctx, m.defaultModel)
		if err != nil {
			return 0
		}
	}

	inputCost := float64(inputTokens) / tokensToPerK * rates.InputCostPer1K
	outputCost := float64(outputTokens) / tokensToPerK * rates.OutputCostPer1K

	return (inputCost + outputCost) * dollarsToCents
}

// Check is the pre-flight gate: it denies when today's accumulated
// spend plus the estimate would exceed the daily ceiling. No lock is
// held across the downstream call this guards.
func (m *CostMeter) Check(ip string, estimatedCents float64) CostVerdict {
	m.mu.Lock()
	entry := m.entryLocked(ip)
	used := entry.costCents
	m.mu.Unlock()

	remaining := m.dailyLimitCents - used
	if remaining < 0 {
		remaining = 0
	}

	if used+estimatedCents > m.dailyLimitCents {
		m.metrics.RecordCostDenial()
		return CostVerdict{
			Allowed: false,
			Message: fmt.Sprintf(
				"Daily limit exceeded. Used: $%.4f of $%.2f. Remaining: $%.4f",
				used/dollarsToCents, m.dailyLimitCents/dollarsToCents, remaining/dollarsToCents,
			),
			UsedCents:      used,
			LimitCents:     m.dailyLimitCents,
			RemainingCents: remaining,
		}
	}

	return CostVerdict{
		Allowed:        true,
		UsedCents:      used,
		LimitCents:     m.dailyLimitCents,
		RemainingCents: remaining,
	}
}

// Record adds the true cost of a completed call to the IP's ledger,
// priced from the call's real token counts. Returns the cents charged.
func (m *CostMeter) Record(ip, model string, inputTokens, outputTokens int) float64 {
	cost := m.EstimateCents(model, inputTokens, outputTokens)

	m.mu.Lock()
	entry := m.entryLocked(ip)
	entry.costCents += cost
	entry.requests++
	m.mu.Unlock()

	m.metrics.RecordCost(cost)
	return cost
}

// Stats returns a read-only snapshot of the IP's spend today.
func (m *CostMeter) Stats(ip string) CostStats {
	m.mu.Lock()
	entry := m.entryLocked(ip)
	stats := CostStats{
		CostCents:      entry.costCents,
		Requests:       entry.requests,
		LimitCents:     m.dailyLimitCents,
		RemainingCents: m.dailyLimitCents - entry.costCents,
	}
	m.mu.Unlock()

	if stats.RemainingCents < 0 {
		stats.RemainingCents = 0
	}
	return stats
}

// entryLocked returns today's entry for the IP, resetting it on day
// rollover. Caller holds m.mu.
func (m *CostMeter) entryLocked(ip string) *costEntry {
	today := DayKey(m.clock())

	entry, exists := m.usage[ip]
	if !exists {
		entry = &costEntry{day: today}
		m.usage[ip] = entry
		return entry
	}

	if entry.day != today {
		entry.day = today
		entry.costCents = 0
		entry.requests = 0
	}
	return entry
}
