package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

type mockOrders struct{ mock.Mock }

func (m *mockOrders) Create(ctx context.Context, req api.CreateOrderRequest) (*domain.OrderReceipt, error) {
	args := m.Called(req)
	r, _ := args.Get(0).(*domain.OrderReceipt)
	return r, args.Error(1)
}

func (m *mockOrders) List(ctx context.Context) ([]domain.Order, error) {
	args := m.Called()
	o, _ := args.Get(0).([]domain.Order)
	return o, args.Error(1)
}

func (m *mockOrders) Get(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(id)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

type stubCart struct {
	items []domain.CartLineItem
	loads int
}

func (c *stubCart) Items() []domain.CartLineItem { return domain.CloneItems(c.items) }
func (c *stubCart) Load(context.Context)         { c.loads++ }

type stubSession bool

func (s stubSession) Authenticated() bool { return bool(s) }

func testCart() *stubCart {
	return &stubCart{items: []domain.CartLineItem{
		{ID: "soup", UnitPrice: 4, Quantity: 2, IsSelected: true},
		{ID: "pizza", UnitPrice: 10, DiscountPrice: domain.Price(8), Quantity: 1, IsSelected: true},
		{ID: "cake", UnitPrice: 6, Quantity: 1, IsSelected: false},
	}}
}

func TestSummary(t *testing.T) {
	svc := New(new(mockOrders), testCart(), stubSession(true), logger.Discard())
	sum := svc.Summary()
	assert.Len(t, sum.Items, 2)
	assert.Equal(t, 3, sum.Quantity)
	assert.Equal(t, 16.0, sum.Subtotal)
}

func TestPlaceOrder_SendsSelectedLinesAndReloads(t *testing.T) {
	orders := new(mockOrders)
	c := testCart()
	svc := New(orders, c, stubSession(true), logger.Discard())

	orders.On("Create", api.CreateOrderRequest{
		PaymentMethod: "cash-on-delivery",
		CartItemIDs:   []string{"soup", "pizza"},
	}).Return(&domain.OrderReceipt{OrderID: "o1", TotalAmount: 16}, nil)

	receipt, err := svc.PlaceOrder(context.Background(), domain.PaymentCashOnDelivery)
	require.NoError(t, err)
	assert.Equal(t, "o1", receipt.OrderID)
	assert.Equal(t, 1, c.loads)
	orders.AssertExpectations(t)
}

func TestPlaceOrder_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		session stubSession
		cart    *stubCart
		method  domain.PaymentMethod
		wantErr error
	}{
		{"signed out", false, testCart(), domain.PaymentCashOnDelivery, apperrors.ErrUnauthorized},
		{"banking unavailable", true, testCart(), domain.PaymentBanking, apperrors.ErrInvalidInput},
		{"nothing selected", true, &stubCart{items: []domain.CartLineItem{{ID: "a"}}}, domain.PaymentCashOnDelivery, apperrors.ErrInvalidInput},
		{"empty cart", true, &stubCart{}, domain.PaymentCashOnDelivery, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := new(mockOrders)
			svc := New(orders, tt.cart, tt.session, logger.Discard())
			_, err := svc.PlaceOrder(context.Background(), tt.method)
			assert.ErrorIs(t, err, tt.wantErr)
			orders.AssertNotCalled(t, "Create", mock.Anything)
			assert.Zero(t, tt.cart.loads)
		})
	}
}

func TestPlaceOrder_ServerFailureKeepsCart(t *testing.T) {
	orders := new(mockOrders)
	c := testCart()
	svc := New(orders, c, stubSession(true), logger.Discard())
	orders.On("Create", mock.Anything).Return(nil, apperrors.Conflict("item out of stock"))

	_, err := svc.PlaceOrder(context.Background(), domain.PaymentCashOnDelivery)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Zero(t, c.loads)
}

func TestOrders_RequireSession(t *testing.T) {
	svc := New(new(mockOrders), testCart(), stubSession(false), logger.Discard())
	_, err := svc.Orders(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = svc.Order(context.Background(), "o1")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestOrders_Delegates(t *testing.T) {
	orders := new(mockOrders)
	svc := New(orders, testCart(), stubSession(true), logger.Discard())
	orders.On("List").Return([]domain.Order{{ID: "o1"}}, nil)
	orders.On("Get", "o1").Return(&domain.Order{ID: "o1"}, nil)

	list, err := svc.Orders(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	o, err := svc.Order(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}

func TestTimeline(t *testing.T) {
	placed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := domain.Order{
		DeliveryStatus:       domain.DeliveryPreparing,
		DeliveryStatusTiming: domain.DeliveryStatusTiming{OrderPlacedCompletedAt: &placed},
	}

	steps := Timeline(o)
	require.Len(t, steps, 4)
	assert.True(t, steps[0].Reached)
	assert.Equal(t, &placed, steps[0].CompletedAt)
	assert.True(t, steps[1].Reached)
	assert.True(t, steps[1].Current)
	assert.False(t, steps[2].Reached)
	assert.Equal(t, "Delivered", steps[3].Label)

	unknown := Timeline(domain.Order{DeliveryStatus: "lost"})
	for _, s := range unknown {
		assert.False(t, s.Reached)
	}
}
