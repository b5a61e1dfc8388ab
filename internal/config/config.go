// Package config loads the storefront client's configuration from the
// environment and an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/utafrali/storefront/internal/storage"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Config holds all configuration for the storefront client.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`

	// API
	APIBaseURL     string        `env:"STOREFRONT_API_BASE_URL" envDefault:"http://localhost:8080/api"`
	RequestTimeout time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT" envDefault:"15s"`
	MaxRetries     int           `env:"STOREFRONT_MAX_RETRIES" envDefault:"2"`
	RetryWaitMin   time.Duration `env:"STOREFRONT_RETRY_WAIT_MIN" envDefault:"200ms"`
	RetryWaitMax   time.Duration `env:"STOREFRONT_RETRY_WAIT_MAX" envDefault:"2s"`
	RateLimit      float64       `env:"STOREFRONT_RATE_LIMIT" envDefault:"0"`
	RateBurst      int           `env:"STOREFRONT_RATE_BURST" envDefault:"5"`
	CircuitBreaker bool          `env:"STOREFRONT_CIRCUIT_BREAKER" envDefault:"true"`

	// Durable storage
	StorageBackend   string `env:"STOREFRONT_STORAGE" envDefault:"file"`
	StoragePath      string `env:"STOREFRONT_STORAGE_PATH" envDefault:"~/.config/storefront/state.toml"`
	StorageNamespace string `env:"STOREFRONT_STORAGE_NAMESPACE" envDefault:"default"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka; no brokers disables cart analytics.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Tracing
	TracingEnabled    bool    `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Load reads configuration from the environment, with the TOML file at path
// (optional, may be empty) underneath it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	u, err := url.Parse(c.APIBaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid API base URL: %w", err))
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		errs = append(errs, fmt.Errorf("API base URL must be an absolute http(s) URL, got %q", c.APIBaseURL))
	case c.Environment == "production" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("API base URL must use https in %q mode", c.Environment))
	}

	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		errs = append(errs, fmt.Errorf("max retries must be between 0 and 10, got %d", c.MaxRetries))
	}
	if c.RetryWaitMin <= 0 || c.RetryWaitMax < c.RetryWaitMin {
		errs = append(errs, fmt.Errorf("retry wait bounds invalid: min %s, max %s", c.RetryWaitMin, c.RetryWaitMax))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate burst must be at least 1, got %d", c.RateBurst))
	}

	switch c.StorageBackend {
	case storage.BackendMemory, storage.BackendFile:
	case storage.BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis storage needs REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("trace sample rate must be between 0 and 1, got %g", c.TracingSampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid storefront config: %w", errors.Join(errs...))
	}
	return nil
}

// KafkaEnabled reports whether cart analytics are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
