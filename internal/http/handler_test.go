package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adaptiva/adaptiva-api/internal/auth"
	"github.com/adaptiva/adaptiva-api/internal/domain"
	apihttp "github.com/adaptiva/adaptiva-api/internal/http"
	"github.com/adaptiva/adaptiva-api/internal/http/middleware"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cannedProvider struct {
	content string
	usage   domain.Usage
}

func (p *cannedProvider) Complete(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return &domain.CompletionResponse{
		ID:       "canned-1",
		Model:    req.Model,
		Provider: "canned",
		Content:  p.content,
		Usage:    p.usage,
	}, nil
}

func (p *cannedProvider) Name() string { return "canned" }

type fixedCounter struct{ tokens int }

func (c fixedCounter) Count(string) int { return c.tokens }

const cannedSuggestion = `{
	"spec": {"chart_type": "bar", "x_axis": "region", "y_axis": "sales", "aggregate": "sum"},
	"explanation": "Bar chart compares a numeric value across categories.",
	"confidence": 0.85,
	"alternatives": ["line"]
}`

type testEnv struct {
	clock     *fakeClock
	handler   *apihttp.Handler
	validator *auth.Service
	guarded   http.Handler
}

func newTestEnv(t *testing.T, limits domain.RateLimits, costLimitCents float64) *testEnv {
	t.Helper()

	clock := newFakeClock(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))

	issuer, err := domain.NewIdentityIssuer("test-session-secret", clock.Now)
	require.NoError(t, err)

	limiter := domain.NewRateLimitService(domain.NewMemoryUsageStore(), limits, nil, clock.Now)
	meter := domain.NewCostMeter(domain.NewDefaultPricingRegistry(), "gpt-4o-mini", costLimitCents, nil, clock.Now)

	provider := &cannedProvider{
		content: cannedSuggestion,
		usage:   domain.Usage{PromptTokens: 800, CompletionTokens: 500, TotalTokens: 1300},
	}
	analysis := domain.NewAnalysisService(provider, fixedCounter{tokens: 200}, meter, "gpt-4o-mini", 1000)

	validator := auth.NewService("access-token-secret", clock.Now)
	handler := apihttp.NewHandler(analysis, meter, limiter, issuer)
	guard := middleware.NewAnonymousGuard(issuer, limiter, validator)

	return &testEnv{
		clock:     clock,
		handler:   handler,
		validator: validator,
		guarded:   guard.Wrap(http.HandlerFunc(handler.HandleSuggestChart)),
	}
}

const suggestBody = `{"columns": [{"name": "region", "type": "categorical"}, {"name": "sales", "type": "numeric"}]}`

func (e *testEnv) suggest(remoteAddr, sessionToken, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/charts/suggest", strings.NewReader(suggestBody))
	req.RemoteAddr = remoteAddr
	if sessionToken != "" {
		req.Header.Set(middleware.SessionHeader, sessionToken)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	recorder := httptest.NewRecorder()
	e.guarded.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestAnonymousGuard_DailyQuota(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 3, Global: 1000, BurstPerMinute: 100}, 100)

	first := env.suggest("203.0.113.7:51234", "", "")
	require.Equal(t, http.StatusOK, first.Code)

	// A fresh session token is issued on the first unidentified call.
	token := first.Header().Get(middleware.SessionHeader)
	require.NotEmpty(t, token)
	require.Equal(t, "3", first.Header().Get(middleware.HeaderRateLimitLimit))
	require.Equal(t, "2", first.Header().Get(middleware.HeaderRateLimitRemaining))
	require.Equal(t, "1", first.Header().Get(middleware.HeaderRateLimitUsed))

	second := env.suggest("203.0.113.7:51234", token, "")
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "1", second.Header().Get(middleware.HeaderRateLimitRemaining))
	// A valid presented token is not re-issued.
	require.Empty(t, second.Header().Get(middleware.SessionHeader))

	third := env.suggest("203.0.113.7:51234", token, "")
	require.Equal(t, http.StatusOK, third.Code)
	require.Equal(t, "0", third.Header().Get(middleware.HeaderRateLimitRemaining))

	fourth := env.suggest("203.0.113.7:51234", token, "")
	require.Equal(t, http.StatusTooManyRequests, fourth.Code)

	body := decodeBody(t, fourth)
	require.Equal(t, domain.CodeRateLimitExceeded, body["code"])
	require.EqualValues(t, 3, body["queries_used"])
	require.EqualValues(t, 3, body["queries_limit"])
	require.Contains(t, body["message"], "Sign up")

	resetAt, err := time.Parse(time.RFC3339, body["reset_at"].(string))
	require.NoError(t, err)
	require.True(t, resetAt.After(env.clock.Now()))
}

func TestAnonymousGuard_AntiBypass(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 3, Global: 1000, BurstPerMinute: 100}, 100)

	first := env.suggest("203.0.113.7:51234", "", "")
	require.Equal(t, http.StatusOK, first.Code)
	token := first.Header().Get(middleware.SessionHeader)

	for n := 0; n < 2; n++ {
		recorder := env.suggest("203.0.113.7:51234", token, "")
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	t.Run("rotating IPs does not shed the session count", func(t *testing.T) {
		recorder := env.suggest("198.51.100.9:40000", token, "")
		require.Equal(t, http.StatusTooManyRequests, recorder.Code)
		require.Equal(t, domain.CodeRateLimitExceeded, decodeBody(t, recorder)["code"])
	})

	t.Run("discarding the token does not shed the IP count", func(t *testing.T) {
		recorder := env.suggest("203.0.113.7:51234", "", "")
		require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	})

	t.Run("a genuinely new caller is unaffected", func(t *testing.T) {
		recorder := env.suggest("198.51.100.10:40000", "", "")
		require.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestAnonymousGuard_Burst(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 100, Global: 1000, BurstPerMinute: 2}, 100)

	for n := 0; n < 2; n++ {
		recorder := env.suggest("203.0.113.7:51234", "", "")
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	denied := env.suggest("203.0.113.7:51234", "", "")
	require.Equal(t, http.StatusTooManyRequests, denied.Code)

	body := decodeBody(t, denied)
	require.Equal(t, domain.CodeBurstLimitExceeded, body["code"])
	require.NotEmpty(t, body["message"])

	// Another IP is not throttled, and the window clears with time.
	require.Equal(t, http.StatusOK, env.suggest("198.51.100.9:40000", "", "").Code)

	env.clock.Advance(61 * time.Second)
	require.Equal(t, http.StatusOK, env.suggest("203.0.113.7:51234", "", "").Code)
}

func TestAnonymousGuard_GlobalCap(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 100, Global: 2, BurstPerMinute: 100}, 100)

	require.Equal(t, http.StatusOK, env.suggest("203.0.113.7:51234", "", "").Code)
	require.Equal(t, http.StatusOK, env.suggest("198.51.100.9:40000", "", "").Code)

	// A caller with untouched personal quota is still rejected.
	denied := env.suggest("192.0.2.33:40000", "", "")
	require.Equal(t, http.StatusTooManyRequests, denied.Code)
	require.Equal(t, domain.CodeGlobalLimitExceeded, decodeBody(t, denied)["code"])
}

func TestAnonymousGuard_BearerBypass(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 1, Global: 1000, BurstPerMinute: 100}, 100)

	bearer, err := env.validator.Mint("user-42", time.Hour)
	require.NoError(t, err)

	// Authenticated callers sail past a daily limit of one.
	for n := 0; n < 5; n++ {
		recorder := env.suggest("203.0.113.7:51234", "", bearer)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Empty(t, recorder.Header().Get(middleware.HeaderRateLimitLimit))
	}

	// A garbage bearer falls through to anonymous gating.
	require.Equal(t, http.StatusOK, env.suggest("203.0.113.7:51234", "", "not-a-real-token").Code)
	require.Equal(t, http.StatusTooManyRequests, env.suggest("203.0.113.7:51234", "", "not-a-real-token").Code)
}

func TestHandler_CostLimit(t *testing.T) {
	// Ceiling below any single call's estimate.
	env := newTestEnv(t, domain.RateLimits{Daily: 100, Global: 1000, BurstPerMinute: 100}, 0.01)

	recorder := env.suggest("203.0.113.7:51234", "", "")
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)

	body := decodeBody(t, recorder)
	require.Equal(t, domain.CodeCostLimitExceeded, body["code"])
	require.InDelta(t, 0.01, body["daily_limit_cents"].(float64), 1e-9)
	require.Contains(t, body, "remaining_cents")
}

func TestHandler_SuggestChart_BadBody(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 100, Global: 1000, BurstPerMinute: 100}, 100)

	req := httptest.NewRequest(http.MethodPost, "/v1/charts/suggest", strings.NewReader("{not json"))
	req.RemoteAddr = "203.0.113.7:51234"
	recorder := httptest.NewRecorder()
	env.guarded.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandler_Usage(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 3, Global: 1000, BurstPerMinute: 100}, 20)

	first := env.suggest("203.0.113.7:51234", "", "")
	require.Equal(t, http.StatusOK, first.Code)
	token := first.Header().Get(middleware.SessionHeader)

	second := env.suggest("203.0.113.7:51234", token, "")
	require.Equal(t, http.StatusOK, second.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set(middleware.SessionHeader, token)
	recorder := httptest.NewRecorder()
	env.handler.HandleUsage(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Cost struct {
			CostCents float64 `json:"cost_cents"`
			Requests  int     `json:"requests"`
		} `json:"cost"`
		Quota struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Used      int   `json:"used"`
			Reset     int64 `json:"reset"`
		} `json:"quota"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))

	require.Equal(t, 3, body.Quota.Limit)
	require.Equal(t, 2, body.Quota.Used)
	require.Equal(t, 1, body.Quota.Remaining)
	require.Greater(t, body.Quota.Reset, env.clock.Now().Unix())

	require.Equal(t, 2, body.Cost.Requests)
	require.InDelta(t, 2*0.042, body.Cost.CostCents, 1e-9)
}

func TestHandler_Health(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 3, Global: 1000, BurstPerMinute: 100}, 20)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	env.handler.HandleHealth(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "healthy", decodeBody(t, recorder)["status"])
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, domain.RateLimits{Daily: 3, Global: 1000, BurstPerMinute: 100}, 20)

	req := httptest.NewRequest(http.MethodGet, "/v1/charts/suggest", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	recorder := httptest.NewRecorder()
	env.guarded.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusMethodNotAllowed, recorder.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/usage", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	recorder = httptest.NewRecorder()
	env.handler.HandleUsage(recorder, req)
	require.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}
