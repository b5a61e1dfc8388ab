// Package checkout places orders for the selected cart lines and reads back
// order history.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/tracing"
)

// OrderAPI is the subset of *api.OrderAPI used here.
type OrderAPI interface {
	Create(ctx context.Context, req api.CreateOrderRequest) (*domain.OrderReceipt, error)
	List(ctx context.Context) ([]domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
}

// Cart is the subset of *cart.Engine used here.
type Cart interface {
	Items() []domain.CartLineItem
	Load(ctx context.Context)
}

// Session reports whether someone is signed in.
type Session interface {
	Authenticated() bool
}

// Summary is what an order would contain if placed now.
type Summary struct {
	Items    []domain.CartLineItem
	Quantity int
	Subtotal float64
}

// Service places orders.
type Service struct {
	orders  OrderAPI
	cart    Cart
	session Session
	logger  *slog.Logger
}

// New returns a checkout service.
func New(orders OrderAPI, c Cart, s Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orders:  orders,
		cart:    c,
		session: s,
		logger:  logger.With(slog.String("component", "checkout")),
	}
}

// Summary returns the selected lines and their totals.
func (s *Service) Summary() Summary {
	selected := cart.SelectedItems(s.cart.Items())
	return Summary{
		Items:    selected,
		Quantity: cart.TotalQuantity(selected),
		Subtotal: cart.SelectedSubtotal(selected),
	}
}

// PlaceOrder orders the selected lines and reloads the cart, which the
// server has emptied of them.
func (s *Service) PlaceOrder(ctx context.Context, method domain.PaymentMethod) (_ *domain.OrderReceipt, err error) {
	ctx, span := tracing.Start(ctx, "checkout.place_order",
		attribute.String("payment_method", string(method)))
	defer func() { tracing.End(span, err) }()

	if !s.session.Authenticated() {
		return nil, apperrors.Unauthorized("sign in to place an order")
	}
	if !method.Available() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("payment method %q is not available", method))
	}
	ids := cart.SelectedIDs(s.cart.Items())
	if len(ids) == 0 {
		return nil, apperrors.InvalidInput("select at least one cart item")
	}

	receipt, err := s.orders.Create(ctx, api.CreateOrderRequest{
		PaymentMethod: string(method),
		CartItemIDs:   ids,
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", receipt.OrderID),
		slog.Int("items", len(ids)),
		slog.Float64("total", receipt.TotalAmount),
	)

	s.cart.Load(ctx)
	return receipt, nil
}

// Orders lists the signed-in user's orders.
func (s *Service) Orders(ctx context.Context) ([]domain.Order, error) {
	if !s.session.Authenticated() {
		return nil, apperrors.Unauthorized("sign in to see your orders")
	}
	return s.orders.List(ctx)
}

// Order returns one order.
func (s *Service) Order(ctx context.Context, id string) (*domain.Order, error) {
	if !s.session.Authenticated() {
		return nil, apperrors.Unauthorized("sign in to see your orders")
	}
	return s.orders.Get(ctx, id)
}

// Step is one entry of an order's delivery timeline.
type Step struct {
	Status      domain.DeliveryStatus
	Label       string
	Reached     bool
	Current     bool
	CompletedAt *time.Time
}

// Timeline lays out the delivery steps of o, marking the ones reached.
func Timeline(o domain.Order) []Step {
	current := o.DeliveryStatus.Step()
	steps := make([]Step, len(domain.DeliveryTimeline))
	for i, status := range domain.DeliveryTimeline {
		steps[i] = Step{
			Status:      status,
			Label:       status.Label(),
			Reached:     i <= current,
			Current:     i == current,
			CompletedAt: o.DeliveryStatusTiming.CompletedAt(status),
		}
	}
	return steps
}
