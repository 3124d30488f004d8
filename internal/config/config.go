// Package config defines the configuration of the replygate server.
// Values are read from the environment once at startup, with a .env file as a lower-priority
// source. Any invalid value stops the process before it serves traffic.
package config

import (
	"time"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// Store backends
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendTiered    = "tiered"
)

// Config is the top-level server configuration.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server  ServerConfig
	Store   StoreConfig
	Engine  EngineConfig
	Breaker BreakerConfig
	Metrics MetricsConfig
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	ReadTimeout time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	// WriteTimeout must cover the longest response delay
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// StoreConfig selects and configures the document store.
// The tiered backend uses Redis as the hot tier and Postgres as the cold tier.
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"memory" validate:"oneof=memory redis postgres firestore tiered"`

	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0,lte=15"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"replygate:"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	FirestoreProjectID  string `envconfig:"FIRESTORE_PROJECT_ID"`
	FirestoreCollection string `envconfig:"FIRESTORE_COLLECTION" default:"replygate_documents"`

	TieredAsync bool `envconfig:"TIERED_ASYNC" default:"true"`
}

// EngineConfig holds engine behavior switches.
type EngineConfig struct {
	EnforceRateLimits   bool   `envconfig:"ENFORCE_RATE_LIMITS" default:"false"`
	UseSettingsTimezone bool   `envconfig:"USE_SETTINGS_TIMEZONE" default:"false"`
	Timezone            string `envconfig:"TIMEZONE" default:"Local"`
	LogRingSize         int    `envconfig:"LOG_RING_SIZE" default:"100" validate:"gte=1,lte=10000"`
}

// BreakerConfig tunes the circuit breaker wrapped around the store.
type BreakerConfig struct {
	Enabled          bool          `envconfig:"BREAKER_ENABLED" default:"true"`
	FailureThreshold uint32        `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5" validate:"gte=1"`
	ResetTimeout     time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"30s"`
	HalfOpenRequests uint32        `envconfig:"BREAKER_HALF_OPEN_REQUESTS" default:"1" validate:"gte=1"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"replygate" validate:"required"`
}

// Settings converts the breaker configuration for replygate.NewBreakerStore.
func (b BreakerConfig) Settings() replygate.BreakerSettings {
	return replygate.BreakerSettings{
		Name:             "store",
		FailureThreshold: b.FailureThreshold,
		ResetTimeout:     b.ResetTimeout,
		HalfOpenRequests: b.HalfOpenRequests,
	}
}

// Location resolves the configured engine timezone.
func (e EngineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(e.Timezone)
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrDotenv indicates an explicitly requested .env file could not be loaded.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
