// Package memory is an in-process storage.Store for tests and ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/utafrali/storefront/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps values in a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Get implements storage.Store.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements storage.Store.
func (s *Store) Set(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error { return nil }

// Len reports how many keys are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
