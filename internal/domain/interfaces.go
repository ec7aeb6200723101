package domain

import (
	"context"
	"time"
)

// UsageStore persists day-keyed request counters. The in-memory
// implementation is the default; a shared backend (e.g. Redis) can
// replace it for multi-instance deployments without touching the guard
// logic above it.
type UsageStore interface {
	// Increment atomically bumps the counter for (scope, value, day),
	// creating it with first_request_at=now and a 24h expiry when
	// absent, and returns the new count.
	Increment(ctx context.Context, scope Scope, value, day string, now time.Time) (int, error)

	// Count returns the current count for the key, or zero when absent.
	Count(ctx context.Context, scope Scope, value, day string) (int, error)

	// FirstRequest returns the first-seen instant for the key.
	FirstRequest(ctx context.Context, scope Scope, value, day string) (time.Time, bool, error)

	// Sweep evicts entries whose expiry has passed and returns how many
	// were removed. Backends with native TTL may make this a no-op.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// CompletionProvider is the AI collaborator behind guarded endpoints.
// It reports real token counts used for post-call cost true-up.
type CompletionProvider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider identifier.
	Name() string
}

// AccessTokenValidator is the auth collaborator's single check: is this
// bearer token a currently-valid authenticated session. It is used only
// to bypass anonymous gating, never for quota accounting.
type AccessTokenValidator interface {
	Validate(token string) bool
}

// TokenCounter estimates how many tokens a prompt will consume, for the
// pre-flight cost check.
type TokenCounter interface {
	Count(text string) int
}

// PricingConfig contains model pricing information.
type PricingConfig struct {
	InputCostPer1K  float64 // USD per 1K input tokens
	OutputCostPer1K float64 // USD per 1K output tokens
}

// PricingRegistry maintains pricing information for models.
type PricingRegistry interface {
	// GetPricing returns pricing config for a model.
	GetPricing(ctx context.Context, model string) (PricingConfig, error)

	// RegisterPricing adds pricing for a model.
	RegisterPricing(ctx context.Context, model string, config PricingConfig) error
}
