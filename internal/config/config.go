// Package config defines the process configuration for the dealbadge API and
// tier sweeper. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any missing required value or invalid format makes LoadConfig fail, and the
// entrypoints exit immediately.
package config

import (
	"time"

	"dealbadge/internal/types"
)

// SecretString is an alias for types.SecretString so secrets never reach logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"dealbadge"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	RateLimit     RateLimitConfig
	Storefront    StorefrontConfig
	Admin         AdminConfig
	Billing       BillingConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s" validate:"gt=0"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL          SecretString  `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns     int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	QueryTimeout time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"3s" validate:"gt=0"`
}

// RateLimitConfig sizes the per-shop fixed window.
type RateLimitConfig struct {
	Max           int           `envconfig:"RATE_LIMIT_MAX" default:"60" validate:"min=1"`
	Window        time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s" validate:"gt=0"`
	SweepInterval time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"5m" validate:"gt=0"`
}

// StorefrontConfig controls storefront token verification.
type StorefrontConfig struct {
	TokenCacheTTL        time.Duration `envconfig:"TOKEN_CACHE_TTL" default:"5m" validate:"gt=0"`
	TokenCacheMaxEntries int           `envconfig:"TOKEN_CACHE_MAX_ENTRIES" default:"1000" validate:"min=1"`
	// AuthEnforce rejects unauthenticated storefront calls. When false,
	// failures are logged and the request continues.
	AuthEnforce bool `envconfig:"STOREFRONT_AUTH_ENFORCE" default:"true"`
}

// AdminConfig holds the bcrypt hash of the admin API key.
type AdminConfig struct {
	APIKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
}

// BillingConfig holds Stripe webhook verification settings. The webhook
// route is only mounted when a secret is configured.
type BillingConfig struct {
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// TierEventsQueueURL is optional; tier events are not published when empty.
	TierEventsQueueURL string `envconfig:"TIER_EVENTS_QUEUE_URL" validate:"omitempty,url"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"DealBadge"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates an explicitly requested .env file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
