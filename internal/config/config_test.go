package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.True(t, cfg.CircuitBreaker)
	assert.Equal(t, "file", cfg.StorageBackend)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.TracingEnabled)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("STOREFRONT_API_BASE_URL", "https://shop.example.com/api")
	t.Setenv("STOREFRONT_STORAGE", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("STOREFRONT_RATE_LIMIT", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, "redis", cfg.StorageBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 2.5, cfg.RateLimit)
}

func TestLoad_FileUnderEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
STOREFRONT_API_BASE_URL = "https://file.example.com"
STOREFRONT_STORAGE = "memory"
STOREFRONT_MAX_RETRIES = 4
KAFKA_BROKERS = ["k1:9092", "k2:9092"]
`), 0o600))
	t.Setenv("STOREFRONT_MAX_RETRIES", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.APIBaseURL)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, 1, cfg.MaxRetries, "environment wins over the file")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [toml"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"relative url", map[string]string{"STOREFRONT_API_BASE_URL": "/api"}, "absolute http(s) URL"},
		{"ftp url", map[string]string{"STOREFRONT_API_BASE_URL": "ftp://example.com"}, "absolute http(s) URL"},
		{"plain http in production", map[string]string{"ENVIRONMENT": "production"}, "must use https"},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}, "invalid log level"},
		{"timeout", map[string]string{"STOREFRONT_REQUEST_TIMEOUT": "0s"}, "request timeout"},
		{"retries", map[string]string{"STOREFRONT_MAX_RETRIES": "11"}, "max retries"},
		{"retry bounds", map[string]string{"STOREFRONT_RETRY_WAIT_MIN": "5s", "STOREFRONT_RETRY_WAIT_MAX": "1s"}, "retry wait"},
		{"rate", map[string]string{"STOREFRONT_RATE_LIMIT": "-1"}, "rate limit"},
		{"burst", map[string]string{"STOREFRONT_RATE_LIMIT": "1", "STOREFRONT_RATE_BURST": "0"}, "rate burst"},
		{"backend", map[string]string{"STOREFRONT_STORAGE": "sqlite"}, "unknown storage backend"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "1.5"}, "sample rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
