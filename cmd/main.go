package main

import (
	"fmt"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/adaptiva/adaptiva-api/internal/auth"
	redcache "github.com/adaptiva/adaptiva-api/internal/cache/redis"
	"github.com/adaptiva/adaptiva-api/internal/config"
	"github.com/adaptiva/adaptiva-api/internal/domain"
	"github.com/adaptiva/adaptiva-api/internal/http"
	"github.com/adaptiva/adaptiva-api/internal/http/middleware"
	"github.com/adaptiva/adaptiva-api/internal/observability"
	"github.com/adaptiva/adaptiva-api/internal/provider/echo"
	"github.com/adaptiva/adaptiva-api/internal/provider/openai"
	"github.com/adaptiva/adaptiva-api/internal/tokencount"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, limiter *domain.RateLimitService, cfg *config.RateLimitConfig) error {
		sweepInterval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
		if err := limiter.StartSweeper(sweepInterval); err != nil {
			return fmt.Errorf("failed to start ledger sweeper: %w", err)
		}
		defer limiter.Stop()

		return server.Start()
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewMetrics); err != nil {
		log.Fatalf("Failed to provide metrics: %v", err)
	}

	// Anonymous identity
	if err := container.Provide(func(cfg *config.RateLimitConfig) (*domain.IdentityIssuer, error) {
		return domain.NewIdentityIssuer(cfg.SessionSecret, nil)
	}); err != nil {
		log.Fatalf("Failed to provide identity issuer: %v", err)
	}

	// Usage store: Redis when configured, in-memory otherwise.
	if err := container.Provide(func(cfg *config.RedisConfig) domain.UsageStore {
		if cfg.Addr == "" {
			return domain.NewMemoryUsageStore()
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return redcache.NewUsageStore(client)
	}); err != nil {
		log.Fatalf("Failed to provide usage store: %v", err)
	}

	// Rate limiting
	if err := container.Provide(func(
		store domain.UsageStore,
		cfg *config.RateLimitConfig,
		metrics *observability.Metrics,
	) *domain.RateLimitService {
		return domain.NewRateLimitService(store, domain.RateLimits{
			Daily:          cfg.AnonymousDailyLimit,
			Global:         cfg.GlobalDailyLimit,
			BurstPerMinute: cfg.BurstPerMinute,
		}, metrics, nil)
	}); err != nil {
		log.Fatalf("Failed to provide rate limit service: %v", err)
	}

	// Cost metering
	if err := container.Provide(func() domain.PricingRegistry {
		return domain.NewDefaultPricingRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}
	if err := container.Provide(func(
		pricing domain.PricingRegistry,
		cfg *config.CostConfig,
		metrics *observability.Metrics,
	) *domain.CostMeter {
		return domain.NewCostMeter(pricing, cfg.DefaultModel, cfg.DailyLimitCents, metrics, nil)
	}); err != nil {
		log.Fatalf("Failed to provide cost meter: %v", err)
	}
	if err := container.Provide(func(cfg *config.CostConfig) (domain.TokenCounter, error) {
		return tokencount.NewCounter(cfg.DefaultModel)
	}); err != nil {
		log.Fatalf("Failed to provide token counter: %v", err)
	}

	// AI provider: OpenAI when a key is configured, offline echo otherwise.
	if err := container.Provide(func(cfg *openai.Config) (domain.CompletionProvider, error) {
		if cfg.APIKey == "" {
			return echo.NewProvider(), nil
		}
		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide AI provider: %v", err)
	}

	// Domain services
	if err := container.Provide(func(
		provider domain.CompletionProvider,
		counter domain.TokenCounter,
		meter *domain.CostMeter,
		cfg *config.CostConfig,
	) *domain.AnalysisService {
		return domain.NewAnalysisService(provider, counter, meter, cfg.DefaultModel, cfg.EstimateOutputTokens)
	}); err != nil {
		log.Fatalf("Failed to provide analysis service: %v", err)
	}

	// Auth bypass collaborator
	if err := container.Provide(func(cfg *config.AuthConfig) domain.AccessTokenValidator {
		return auth.NewService(cfg.AccessTokenSecret, nil)
	}); err != nil {
		log.Fatalf("Failed to provide access token validator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.NewAnonymousGuard); err != nil {
		log.Fatalf("Failed to provide anonymous guard: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
