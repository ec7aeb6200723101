package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adaptiva/adaptiva-api/internal/domain"
	"github.com/adaptiva/adaptiva-api/internal/observability"
)

// SessionHeader carries the signed anonymous session token in both
// directions: presented by the client on requests, re-issued by the
// server whenever no valid token was presented.
const SessionHeader = "X-Anonymous-Session"

// Response headers describing the caller's quota state.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRateLimitUsed      = "X-RateLimit-Used"
)

const upsellMessage = "Sign up for a free account to get unlimited AI queries!"

// AnonymousGuard gates AI endpoints for unauthenticated callers. Valid
// bearer tokens bypass it entirely; everyone else passes the burst,
// global and per-caller quota checks and is charged before the
// downstream call begins.
type AnonymousGuard struct {
	issuer    *domain.IdentityIssuer
	limiter   *domain.RateLimitService
	validator domain.AccessTokenValidator
}

// NewAnonymousGuard creates the guard middleware.
func NewAnonymousGuard(
	issuer *domain.IdentityIssuer,
	limiter *domain.RateLimitService,
	validator domain.AccessTokenValidator,
) *AnonymousGuard {
	return &AnonymousGuard{
		issuer:    issuer,
		limiter:   limiter,
		validator: validator,
	}
}

// Wrap applies the guard to one route.
func (g *AnonymousGuard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.FromContext(ctx)

		if g.validator.Validate(bearerToken(r)) {
			// Authenticated callers are never quota-gated.
			next.ServeHTTP(w, r)
			return
		}

		ip := observability.GetClientIP(ctx)
		if ip == "" {
			ip = ClientIP(r)
			ctx = observability.WithClientIP(ctx, ip)
		}

		// A verification failure is not an error: the caller simply has
		// no identity yet, and gets a fresh one.
		sessionID, issued, ok := g.resolveSession(r)
		if !ok {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		decision, err := g.limiter.Check(ctx, ip, sessionID)
		if err != nil {
			logger.Error("quota check failed", observability.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if !decision.Allowed {
			g.writeDenial(ctx, w, decision, ip, sessionID, issued)
			return
		}

		// Charge before the downstream call so a slow AI request cannot
		// be raced past the limit.
		if err := g.limiter.Record(ctx, ip, sessionID); err != nil {
			logger.Error("usage record failed", observability.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		info, err := g.limiter.Info(ctx, ip, sessionID)
		if err != nil {
			logger.Error("quota info failed", observability.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeRateLimitHeaders(w, info, issued)

		ctx = observability.WithSessionID(ctx, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveSession verifies the presented token or issues a fresh one.
// The returned issued token is empty when the client's token was valid.
func (g *AnonymousGuard) resolveSession(r *http.Request) (sessionID, issued string, ok bool) {
	if token := r.Header.Get(SessionHeader); token != "" {
		if id, valid := g.issuer.Verify(token); valid {
			return id, "", true
		}
	}

	token, identity, err := g.issuer.Issue()
	if err != nil {
		return "", "", false
	}
	return identity.SessionID, token, true
}

func (g *AnonymousGuard) writeDenial(
	ctx context.Context,
	w http.ResponseWriter,
	decision domain.Decision,
	ip, sessionID, issued string,
) {
	w.Header().Set("Content-Type", "application/json")

	switch decision.Code {
	case domain.CodeBurstLimitExceeded:
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "Too many requests",
			"message": "Too many requests. Please wait a moment.",
			"code":    domain.CodeBurstLimitExceeded,
		})

	case domain.CodeGlobalLimitExceeded:
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "Service saturated",
			"message": "Service is experiencing high demand. Please try again later.",
			"code":    domain.CodeGlobalLimitExceeded,
		})

	default: // per-caller quota
		if info, err := g.limiter.Info(ctx, ip, sessionID); err == nil {
			writeRateLimitHeaders(w, info, issued)
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":         "Daily AI query limit reached",
			"code":          domain.CodeRateLimitExceeded,
			"queries_used":  decision.Used,
			"queries_limit": decision.Limit,
			"reset_at":      decision.ResetAt.UTC().Format(time.RFC3339),
			"message":       upsellMessage,
		})
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, info domain.RateLimitInfo, issued string) {
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(info.Limit))
	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(info.Remaining))
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(info.ResetAt.Unix(), 10))
	w.Header().Set(HeaderRateLimitUsed, strconv.Itoa(info.Used))
	if issued != "" {
		w.Header().Set(SessionHeader, issued)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return token
}
