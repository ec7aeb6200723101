package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/adaptiva/adaptiva-api/internal/provider/openai"
)

// Config represents the API backend configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Cost      CostConfig
	Auth      AuthConfig
	Redis     RedisConfig
	OpenAI    openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"120"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Anonymous-Session"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RateLimitConfig contains the anonymous-access quota settings.
// All limits apply only to unauthenticated callers; authenticated
// requests bypass the quota subsystem entirely.
type RateLimitConfig struct {
	// AnonymousDailyLimit caps requests per caller (combined IP/session
	// scope) within a rolling 24-hour window.
	AnonymousDailyLimit int `env:"ANONYMOUS_DAILY_LIMIT" envDefault:"3"`

	// GlobalDailyLimit caps total anonymous requests service-wide per
	// calendar day.
	GlobalDailyLimit int `env:"GLOBAL_ANONYMOUS_DAILY_LIMIT" envDefault:"1000"`

	// BurstPerMinute caps requests per IP within a sliding 60-second
	// window, independent of the daily quota.
	BurstPerMinute int `env:"BURST_LIMIT_PER_MINUTE" envDefault:"10"`

	// SessionSecret signs anonymous session tokens (HMAC-SHA256).
	SessionSecret string `env:"ANONYMOUS_SESSION_SECRET" envDefault:"anon-session-secret-change-in-production!"`

	// SweepIntervalMinutes controls how often expired ledger entries
	// are garbage-collected.
	SweepIntervalMinutes int `env:"RATE_LIMIT_SWEEP_MINUTES" envDefault:"15"`
}

// CostConfig contains the token-cost metering settings.
type CostConfig struct {
	// DailyLimitCents caps per-IP daily spend on metered AI calls, in cents.
	DailyLimitCents float64 `env:"DAILY_COST_LIMIT_CENTS" envDefault:"20"`

	// DefaultModel is the pricing fallback for unknown models and the
	// model used when a request does not specify one.
	DefaultModel string `env:"COST_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`

	// EstimateOutputTokens is the assumed completion size for the
	// pre-flight cost estimate (true token counts are only known after
	// the downstream call completes).
	EstimateOutputTokens int `env:"COST_ESTIMATE_OUTPUT_TOKENS" envDefault:"1000"`
}

// AuthConfig contains settings for the authenticated-bypass check.
type AuthConfig struct {
	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET" envDefault:"dev-secret-key-change-in-production-minimum-32-chars!"`
}

// RedisConfig selects the usage-store backend. An empty Addr keeps the
// default in-memory store.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*RateLimitConfig
	*CostConfig
	*AuthConfig
	*RedisConfig
	*openai.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.RateLimit,
		&cfg.Cost,
		&cfg.Auth,
		&cfg.Redis,
		&cfg.OpenAI,
	}
}
