// Package storage defines the durable key-value store the storefront client
// keeps its tokens and guest cart in.
package storage

import "context"

// Keys used by the storefront client.
const (
	KeyAccessToken           = "access-token"
	KeyAccessTokenExpiresAt  = "access-token-expires-at"
	KeyRefreshToken          = "refresh-token"
	KeyRefreshTokenExpiresAt = "refresh-token-expires-at"
	KeyXSRFToken             = "X-XSRF-TOKEN"
	KeyCartItems             = "cart_items"
	KeyOAuthReturnURL        = "oauthReturnUrl"
)

// Store is a durable string key-value store. Set and Delete are atomic over
// all keys they are given: either every key changes or none does.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes all values in one atomic step.
	Set(ctx context.Context, values map[string]string) error

	// Delete removes all keys in one atomic step. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Close releases the backend.
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)
