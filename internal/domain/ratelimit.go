package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adaptiva/adaptiva-api/internal/observability"
)

// RateLimits holds the configured ceilings for anonymous traffic.
type RateLimits struct {
	Daily          int
	Global         int
	BurstPerMinute int
}

// RateLimitService owns the three anonymous guards and their shared
// ledger. It is constructed once at startup and injected into request
// handlers; no ambient package-level state exists.
type RateLimitService struct {
	ledger  *UsageLedger
	quota   *QuotaGuard
	burst   *BurstGuard
	global  *GlobalCapGuard
	store   UsageStore
	metrics *observability.Metrics
	sweeper *cron.Cron
	clock   Clock
}

// NewRateLimitService wires the guards over the given store.
func NewRateLimitService(
	store UsageStore,
	limits RateLimits,
	metrics *observability.Metrics,
	clock Clock,
) *RateLimitService {
	if clock == nil {
		clock = time.Now
	}

	ledger := NewUsageLedger(store, clock)

	return &RateLimitService{
		ledger:  ledger,
		quota:   NewQuotaGuard(ledger, limits.Daily),
		burst:   NewBurstGuard(limits.BurstPerMinute, clock),
		global:  NewGlobalCapGuard(limits.Global, clock),
		store:   store,
		metrics: metrics,
		clock:   clock,
	}
}

// Check runs the full anonymous guard sequence: burst, then the
// service-wide cap, then the per-caller quota. It must be called
// strictly before Record so rejected requests are never charged.
func (s *RateLimitService) Check(ctx context.Context, ip, sessionID string) (Decision, error) {
	if s.burst.Check(ip) {
		s.deny(CodeBurstLimitExceeded)
		return Decision{Allowed: false, Code: CodeBurstLimitExceeded}, nil
	}

	if s.global.Check() {
		s.deny(CodeGlobalLimitExceeded)
		return Decision{Allowed: false, Code: CodeGlobalLimitExceeded}, nil
	}

	decision, err := s.quota.Check(ctx, ip, sessionID)
	if err != nil {
		return Decision{}, err
	}
	if !decision.Allowed {
		s.deny(decision.Code)
		return decision, nil
	}

	s.metrics.RecordGuardCheck(true)
	return decision, nil
}

// Record charges one request to every ledger: both usage scopes, the
// burst window, and the service-wide counter. Called immediately after
// a passing Check, before the downstream AI call begins.
func (s *RateLimitService) Record(ctx context.Context, ip, sessionID string) error {
	if _, _, err := s.ledger.Increment(ctx, ip, sessionID); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	s.burst.Record(ip)
	s.global.Increment()
	return nil
}

// Info returns the caller's quota state for response headers.
func (s *RateLimitService) Info(ctx context.Context, ip, sessionID string) (RateLimitInfo, error) {
	return s.quota.Info(ctx, ip, sessionID)
}

// StartSweeper runs the expired-entry garbage collection on a fixed
// interval until Stop is called. Rolled-over counters are unreachable
// without it, but only the sweep reclaims their memory.
func (s *RateLimitService) StartSweeper(interval time.Duration) error {
	if s.sweeper != nil {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		evicted, sweepErr := s.store.Sweep(ctx, s.clock())
		logger := observability.FromContext(ctx)
		if sweepErr != nil {
			logger.Warn("usage ledger sweep failed", observability.Error(sweepErr))
			return
		}
		if evicted > 0 {
			logger.Info("usage ledger sweep completed", observability.Int("evicted", evicted))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule ledger sweep: %w", err)
	}

	c.Start()
	s.sweeper = c
	return nil
}

// Stop halts the background sweeper.
func (s *RateLimitService) Stop() {
	if s.sweeper != nil {
		s.sweeper.Stop()
		s.sweeper = nil
	}
}

func (s *RateLimitService) deny(code string) {
	s.metrics.RecordGuardCheck(false)
	s.metrics.RecordGuardDenial(code)
}
