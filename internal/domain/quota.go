package domain

import (
	"context"
	"fmt"
	"time"
)

// UsageLedger tracks per-caller daily request counts over a UsageStore,
// keyed by IP and (when present) anonymous session ID.
type UsageLedger struct {
	store UsageStore
	clock Clock
}

// NewUsageLedger creates a ledger over the given store.
func NewUsageLedger(store UsageStore, clock Clock) *UsageLedger {
	if clock == nil {
		clock = time.Now
	}
	return &UsageLedger{
		store: store,
		clock: clock,
	}
}

// Increment records one request against both the IP scope and, when a
// session is present, the session scope. Returns the new counts.
func (l *UsageLedger) Increment(ctx context.Context, ip, sessionID string) (int, int, error) {
	now := l.clock()
	day := DayKey(now)

	ipCount, err := l.store.Increment(ctx, ScopeIP, ip, day, now)
	if err != nil {
		return 0, 0, fmt.Errorf("increment ip counter: %w", err)
	}

	sessionCount := 0
	if sessionID != "" {
		sessionCount, err = l.store.Increment(ctx, ScopeSession, sessionID, day, now)
		if err != nil {
			return ipCount, 0, fmt.Errorf("increment session counter: %w", err)
		}
	}

	return ipCount, sessionCount, nil
}

// CombinedUsage returns max(ip count, session count) for today. Taking
// the maximum is the anti-bypass rule: rotating IPs leaves the session
// count intact, discarding the session token leaves the IP count
// intact, so neither signal alone can evade the limit.
func (l *UsageLedger) CombinedUsage(ctx context.Context, ip, sessionID string) (int, error) {
	day := DayKey(l.clock())

	ipCount, err := l.store.Count(ctx, ScopeIP, ip, day)
	if err != nil {
		return 0, fmt.Errorf("read ip counter: %w", err)
	}

	sessionCount := 0
	if sessionID != "" {
		sessionCount, err = l.store.Count(ctx, ScopeSession, sessionID, day)
		if err != nil {
			return 0, fmt.Errorf("read session counter: %w", err)
		}
	}

	if sessionCount > ipCount {
		return sessionCount, nil
	}
	return ipCount, nil
}

// ResetTime returns when the caller's rolling 24-hour window resets:
// the earliest first-seen instant across the IP and session counters,
// plus 24 hours. A caller with no counters yet resets 24h from now.
func (l *UsageLedger) ResetTime(ctx context.Context, ip, sessionID string) (time.Time, error) {
	now := l.clock()
	day := DayKey(now)

	first, ok, err := l.store.FirstRequest(ctx, ScopeIP, ip, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("read ip first-request: %w", err)
	}

	if sessionID != "" {
		sessionFirst, sessionOK, sErr := l.store.FirstRequest(ctx, ScopeSession, sessionID, day)
		if sErr != nil {
			return time.Time{}, fmt.Errorf("read session first-request: %w", sErr)
		}
		if sessionOK && (!ok || sessionFirst.Before(first)) {
			first = sessionFirst
			ok = true
		}
	}

	if !ok {
		first = now
	}
	return first.Add(counterTTL), nil
}

// QuotaGuard compares combined usage against the per-caller daily
// ceiling. Check must run strictly before the ledger increment so
// rejected requests are never charged.
type QuotaGuard struct {
	ledger     *UsageLedger
	dailyLimit int
}

// NewQuotaGuard creates a guard over the given ledger.
func NewQuotaGuard(ledger *UsageLedger, dailyLimit int) *QuotaGuard {
	return &QuotaGuard{
		ledger:     ledger,
		dailyLimit: dailyLimit,
	}
}

// Check returns the quota verdict for a caller. Denials carry enough
// detail for the 429 body and headers.
func (g *QuotaGuard) Check(ctx context.Context, ip, sessionID string) (Decision, error) {
	used, err := g.ledger.CombinedUsage(ctx, ip, sessionID)
	if err != nil {
		return Decision{}, err
	}

	if used >= g.dailyLimit {
		resetAt, rErr := g.ledger.ResetTime(ctx, ip, sessionID)
		if rErr != nil {
			return Decision{}, rErr
		}
		return Decision{
			Allowed: false,
			Code:    CodeRateLimitExceeded,
			Used:    used,
			Limit:   g.dailyLimit,
			ResetAt: resetAt,
		}, nil
	}

	return Decision{Allowed: true, Used: used, Limit: g.dailyLimit}, nil
}

// Info returns the quota state for response headers.
func (g *QuotaGuard) Info(ctx context.Context, ip, sessionID string) (RateLimitInfo, error) {
	used, err := g.ledger.CombinedUsage(ctx, ip, sessionID)
	if err != nil {
		return RateLimitInfo{}, err
	}

	resetAt, err := g.ledger.ResetTime(ctx, ip, sessionID)
	if err != nil {
		return RateLimitInfo{}, err
	}

	remaining := g.dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitInfo{
		Limit:     g.dailyLimit,
		Remaining: remaining,
		Used:      used,
		ResetAt:   resetAt,
	}, nil
}
