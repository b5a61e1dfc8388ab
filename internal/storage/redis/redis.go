// Package redis is a storage.Store backed by Redis, for sharing one session
// between several storefront processes.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/storage"
)

const keyPrefix = "storefront:"

var _ storage.Store = (*Store)(nil)

// Config holds Redis connection configuration.
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// DefaultConfig returns sensible defaults for Redis.
func DefaultConfig() Config {
	return Config{
		Addr:      "localhost:6379",
		Namespace: "default",
	}
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Store keeps every key under storefront:<namespace>:.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing client. The store owns the client and closes it.
func New(client *redis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultConfig().Namespace
	}
	return &Store{
		client: client,
		prefix: keyPrefix + namespace + ":",
	}
}

// Open dials Redis and returns a store over the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, cfg.Namespace), nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements storage.Store with a MULTI/EXEC transaction.
func (s *Store) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements storage.Store with a single DEL.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.client.Close()
}
