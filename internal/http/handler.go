package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/adaptiva/adaptiva-api/internal/domain"
	"github.com/adaptiva/adaptiva-api/internal/http/middleware"
	"github.com/adaptiva/adaptiva-api/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	analysis *domain.AnalysisService
	meter    *domain.CostMeter
	limiter  *domain.RateLimitService
	issuer   *domain.IdentityIssuer
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	analysis *domain.AnalysisService,
	meter *domain.CostMeter,
	limiter *domain.RateLimitService,
	issuer *domain.IdentityIssuer,
) *Handler {
	return &Handler{
		analysis: analysis,
		meter:    meter,
		limiter:  limiter,
		issuer:   issuer,
	}
}

// HandleSuggestChart serves AI chart suggestions. The route is wrapped
// by the anonymous guard; cost metering happens inside the service.
func (h *Handler) HandleSuggestChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	logger := observability.FromContext(ctx)
	logger.Info("chart suggestion requested",
		observability.Int("columns", len(req.Columns)),
	)

	response, err := h.analysis.SuggestChart(ctx, observability.GetClientIP(ctx), &req)
	if err != nil {
		h.writeAnalysisError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, response)
}

// HandleInsights serves AI dataset insights, same guard and metering as
// chart suggestions.
func (h *Handler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.InsightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	response, err := h.analysis.Insights(ctx, observability.GetClientIP(ctx), &req)
	if err != nil {
		h.writeAnalysisError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, response)
}

// usageResponse is the read-only snapshot served by /v1/usage.
type usageResponse struct {
	Cost  domain.CostStats `json:"cost"`
	Quota quotaSnapshot    `json:"quota"`
}

type quotaSnapshot struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Used      int   `json:"used"`
	Reset     int64 `json:"reset"`
}

// HandleUsage reports the caller's current spend and quota state. The
// route is unguarded: reading your own usage costs nothing.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := observability.GetClientIP(ctx)
	if ip == "" {
		ip = middleware.ClientIP(r)
	}

	sessionID := ""
	if token := r.Header.Get(middleware.SessionHeader); token != "" {
		sessionID, _ = h.issuer.Verify(token)
	}

	info, err := h.limiter.Info(ctx, ip, sessionID)
	if err != nil {
		observability.FromContext(ctx).Error("quota info failed", observability.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, usageResponse{
		Cost: h.meter.Stats(ip),
		Quota: quotaSnapshot{
			Limit:     info.Limit,
			Remaining: info.Remaining,
			Used:      info.Used,
			Reset:     info.ResetAt.Unix(),
		},
	})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// writeAnalysisError maps service failures onto status codes: cost
// pre-flight denials are 429 with budget detail, unparseable provider
// output is 502, validation problems are 400.
func (h *Handler) writeAnalysisError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := observability.FromContext(ctx)

	var costErr *domain.CostLimitError
	switch {
	case errors.As(err, &costErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "Daily cost limit reached",
			"code":              domain.CodeCostLimitExceeded,
			"message":           costErr.Verdict.Message,
			"daily_limit_cents": costErr.Verdict.LimitCents,
			"remaining_cents":   costErr.Verdict.RemainingCents,
		})

	case errors.Is(err, domain.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, domain.ErrBadAIResponse):
		logger.Error("provider returned bad payload", observability.Error(err))
		http.Error(w, "upstream AI response could not be parsed", http.StatusBadGateway)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusRequestTimeout)

	default:
		logger.Error("analysis request failed", observability.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.FromContext(ctx).Error("failed to encode response", observability.Error(err))
	}
}
