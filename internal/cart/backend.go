package cart

import (
	"context"
	"fmt"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Mode says where the canonical cart lives.
type Mode string

const (
	ModeGuest         Mode = "guest"
	ModeAuthenticated Mode = "authenticated"
)

// Backend performs the I/O of one cart mode. The engine owns the merge
// rules; a backend only reports what the line should look like afterwards.
type Backend interface {
	Mode() Mode
	Load(ctx context.Context) ([]domain.CartLineItem, error)
	// Add returns the line to merge into the snapshot.
	Add(ctx context.Context, item domain.CartLineItem, quantity int) (domain.CartLineItem, error)
	// Update returns the line's resulting quantity; <= 0 removes it.
	Update(ctx context.Context, current domain.CartLineItem, quantity int) (int, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	// Persist stores the snapshot that is about to be committed.
	Persist(ctx context.Context, items []domain.CartLineItem) error
}

// RemoteCart is the server cart API.
type RemoteCart interface {
	Get(ctx context.Context) ([]domain.CartLineItem, error)
	AddItem(ctx context.Context, req api.AddCartItemRequest) (*domain.CartLineItem, error)
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) (*domain.CartLineItem, error)
	RemoveItem(ctx context.Context, itemID string) error
	Clear(ctx context.Context) error
}

var _ RemoteCart = (*api.CartAPI)(nil)

// LocalStore is durable guest cart storage.
type LocalStore interface {
	Load(ctx context.Context) ([]domain.CartLineItem, error)
	Save(ctx context.Context, items []domain.CartLineItem) error
	Clear(ctx context.Context) error
}

// RemoteBackend keeps the cart on the server. Server responses are taken as
// ground truth.
type RemoteBackend struct {
	api RemoteCart
}

// NewRemoteBackend returns a backend over the cart API.
func NewRemoteBackend(c RemoteCart) *RemoteBackend {
	return &RemoteBackend{api: c}
}

// Mode reports ModeAuthenticated.
func (b *RemoteBackend) Mode() Mode { return ModeAuthenticated }

// Load fetches the server cart.
func (b *RemoteBackend) Load(ctx context.Context) ([]domain.CartLineItem, error) {
	items, err := b.api.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get server cart: %w", err)
	}
	return items, nil
}

// Add posts the item and returns the server's merged line.
func (b *RemoteBackend) Add(ctx context.Context, item domain.CartLineItem, quantity int) (domain.CartLineItem, error) {
	line, err := b.api.AddItem(ctx, api.AddCartItemRequest{FoodID: item.ID, Quantity: quantity})
	if err != nil {
		return domain.CartLineItem{}, err
	}
	return *line, nil
}

// Update sets the line quantity on the server and returns what it stored.
func (b *RemoteBackend) Update(ctx context.Context, current domain.CartLineItem, quantity int) (int, error) {
	line, err := b.api.UpdateItemQuantity(ctx, current.ID, quantity)
	if err != nil {
		return 0, err
	}
	return line.Quantity, nil
}

// Remove deletes the line from the server cart.
func (b *RemoteBackend) Remove(ctx context.Context, id string) error {
	return b.api.RemoveItem(ctx, id)
}

// Clear empties the server cart.
func (b *RemoteBackend) Clear(ctx context.Context) error {
	return b.api.Clear(ctx)
}

// Persist is a no-op; the server already holds the result.
func (b *RemoteBackend) Persist(context.Context, []domain.CartLineItem) error { return nil }

// LocalBackend keeps a guest cart in durable local storage.
type LocalBackend struct {
	store LocalStore
}

// NewLocalBackend returns a backend over store.
func NewLocalBackend(store LocalStore) *LocalBackend {
	return &LocalBackend{store: store}
}

// Mode reports ModeGuest.
func (b *LocalBackend) Mode() Mode { return ModeGuest }

// Load reads the guest cart from the store.
func (b *LocalBackend) Load(ctx context.Context) ([]domain.CartLineItem, error) {
	return b.store.Load(ctx)
}

// Add validates quantity and stock and returns the line clamped to stock.
func (b *LocalBackend) Add(_ context.Context, item domain.CartLineItem, quantity int) (domain.CartLineItem, error) {
	if quantity < 1 {
		return domain.CartLineItem{}, apperrors.InvalidInput("quantity must be at least 1")
	}
	if item.StockQuantity < 1 {
		return domain.CartLineItem{}, apperrors.Conflict(fmt.Sprintf("%s is out of stock", item.Name))
	}
	item.Quantity = item.ClampQuantity(quantity)
	return item, nil
}

// Update clamps quantity to stock. Zero or less means remove.
func (b *LocalBackend) Update(_ context.Context, current domain.CartLineItem, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, nil
	}
	return current.ClampQuantity(quantity), nil
}

// Remove is a no-op; the next Persist drops the line.
func (b *LocalBackend) Remove(context.Context, string) error { return nil }

// Clear deletes the stored guest cart.
func (b *LocalBackend) Clear(ctx context.Context) error {
	return b.store.Clear(ctx)
}

// Persist writes items to the store.
func (b *LocalBackend) Persist(ctx context.Context, items []domain.CartLineItem) error {
	return b.store.Save(ctx, items)
}
