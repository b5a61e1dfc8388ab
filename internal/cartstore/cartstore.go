// Package cartstore persists the guest cart as a JSON array under a single
// storage key.
package cartstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
)

// Store reads and writes the guest cart.
type Store struct {
	kv     storage.Store
	logger *slog.Logger
}

// New returns a guest cart store over kv.
func New(kv storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the stored guest cart. A missing key or a value that is not a
// JSON array of line items reads as an empty cart.
func (s *Store) Load(ctx context.Context) ([]domain.CartLineItem, error) {
	raw, ok, err := s.kv.Get(ctx, storage.KeyCartItems)
	if err != nil {
		return nil, fmt.Errorf("load guest cart: %w", err)
	}
	if !ok || raw == "" {
		return []domain.CartLineItem{}, nil
	}

	var items []domain.CartLineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt guest cart",
			slog.String("error", err.Error()),
		)
		return []domain.CartLineItem{}, nil
	}
	if items == nil {
		items = []domain.CartLineItem{}
	}
	return items, nil
}

// Save replaces the stored guest cart with items.
func (s *Store) Save(ctx context.Context, items []domain.CartLineItem) error {
	if items == nil {
		items = []domain.CartLineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	if err := s.kv.Set(ctx, map[string]string{storage.KeyCartItems: string(data)}); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	return nil
}

// Clear removes the stored guest cart.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, storage.KeyCartItems); err != nil {
		return fmt.Errorf("clear guest cart: %w", err)
	}
	return nil
}
