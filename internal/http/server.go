package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adaptiva/adaptiva-api/internal/config"
	"github.com/adaptiva/adaptiva-api/internal/http/middleware"
	"github.com/adaptiva/adaptiva-api/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config  config.ServerConfig
	handler *Handler
	chain   middleware.Middleware
	guard   *middleware.AnonymousGuard
	srv     *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	serverCfg *config.ServerConfig,
	corsCfg *config.CORSConfig,
	handler *Handler,
	guard *middleware.AnonymousGuard,
) *Server {
	return &Server{
		config:  *serverCfg,
		handler: handler,
		chain:   middleware.BuildMiddlewareChain(corsCfg),
		guard:   guard,
		srv:     nil,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Guarded AI routes.
	mux.Handle("/v1/charts/suggest", s.guard.Wrap(http.HandlerFunc(s.handler.HandleSuggestChart)))
	mux.Handle("/v1/insights", s.guard.Wrap(http.HandlerFunc(s.handler.HandleInsights)))

	// Unguarded routes.
	mux.HandleFunc("/v1/usage", s.handler.HandleUsage)
	mux.HandleFunc("/health", s.handler.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middleware chain.
	handlerWithMiddleware := s.chain(mux)

	// Create server with timeouts.
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handlerWithMiddleware,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", observability.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
