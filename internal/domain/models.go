package domain

import "time"

// Clock supplies the current time. Production code uses time.Now; tests
// substitute a fake to simulate window expiry and day rollover.
type Clock func() time.Time

// Scope identifies which signal a usage counter is keyed on.
type Scope string

const (
	// ScopeIP keys counters on the caller's resolved IP address.
	ScopeIP Scope = "ip"

	// ScopeSession keys counters on the verified anonymous session ID.
	ScopeSession Scope = "session"
)

// counterTTL is how long a day-keyed counter stays reachable. Day-key
// rollover is the actual reset mechanism; the TTL only bounds memory.
const counterTTL = 24 * time.Hour

// DayKey returns the UTC calendar-day key for an instant.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AnonymousIdentity is the payload embedded in a signed session token.
// It is never stored server-side; the signature is the only thing that
// makes it trustworthy.
type AnonymousIdentity struct {
	SessionID string    `json:"sid"`
	IssuedAt  time.Time `json:"iat"`
}

// UsageCounter is a snapshot of one (scope, value, day) counter.
type UsageCounter struct {
	Count          int
	FirstRequestAt time.Time
	ExpiresAt      time.Time
}

// Denial codes distinguish guard failures so clients can choose
// different backoff strategies. All surface as HTTP 429.
const (
	CodeBurstLimitExceeded  = "burst_limit_exceeded"
	CodeGlobalLimitExceeded = "global_limit_exceeded"
	CodeRateLimitExceeded   = "rate_limit_exceeded"
	CodeCostLimitExceeded   = "cost_limit_exceeded"
)

// Decision is the outcome of the combined anonymous guard check.
type Decision struct {
	Allowed bool
	Code    string // set when denied

	// Per-caller quota detail, populated for CodeRateLimitExceeded.
	Used    int
	Limit   int
	ResetAt time.Time
}

// RateLimitInfo carries the quota state attached to guarded responses.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Used      int
	ResetAt   time.Time
}

// CostVerdict is the outcome of a pre-flight cost check.
type CostVerdict struct {
	Allowed        bool
	Message        string
	UsedCents      float64
	LimitCents     float64
	RemainingCents float64
}

// CostStats is a read-only snapshot of an IP's metered spend today.
type CostStats struct {
	CostCents      float64 `json:"cost_cents"`
	Requests       int     `json:"requests"`
	LimitCents     float64 `json:"limit_cents"`
	RemainingCents float64 `json:"remaining_cents"`
}

// Message represents a chat message sent to an AI provider.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// CompletionRequest represents a request to an AI provider.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse represents an AI provider response.
type CompletionResponse struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Content    string    `json:"content"`
	Usage      Usage     `json:"usage"`
	FinishTime time.Time `json:"finish_time"`
}

// Usage tracks token consumption reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
