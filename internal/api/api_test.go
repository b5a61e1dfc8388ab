package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/internal/tokenstore"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// mockRequester records wrapper calls. Options are applied so tests can
// assert on the resulting RequestOptions.
type mockRequester struct {
	mock.Mock
}

func applied(opts []client.Option) client.RequestOptions {
	var o client.RequestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (m *mockRequester) Get(ctx context.Context, endpoint string, out any, opts ...client.Option) error {
	return m.Called(endpoint, nil, out, applied(opts).SkipAuthRefresh).Error(0)
}

func (m *mockRequester) Post(ctx context.Context, endpoint string, body, out any, opts ...client.Option) error {
	return m.Called(endpoint, body, out, applied(opts).SkipAuthRefresh).Error(0)
}

func (m *mockRequester) Put(ctx context.Context, endpoint string, body, out any, opts ...client.Option) error {
	return m.Called(endpoint, body, out, applied(opts).SkipAuthRefresh).Error(0)
}

func (m *mockRequester) Patch(ctx context.Context, endpoint string, body, out any, opts ...client.Option) error {
	return m.Called(endpoint, body, out, applied(opts).SkipAuthRefresh).Error(0)
}

func (m *mockRequester) Delete(ctx context.Context, endpoint string, out any, opts ...client.Option) error {
	return m.Called(endpoint, nil, out, applied(opts).SkipAuthRefresh).Error(0)
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "auth/google/redirect", OAuthRedirectEndpoint("google"))
	assert.Equal(t, "auth/github/callback", OAuthCallbackEndpoint("github"))
	assert.Equal(t, "cart/items/a%2Fb", CartItemEndpoint("a/b"))
	assert.Equal(t, "orders/o1", OrderEndpoint("o1"))
	assert.Equal(t, "foods/f1", FoodEndpoint("f1"))
	assert.Equal(t, "auth/refresh", EndpointRefresh)
}

func TestAuth_LoginSkipsRefreshProtocol(t *testing.T) {
	m := new(mockRequester)
	req := LoginRequest{Email: "ada@example.com", Password: "pw"}
	m.On("Post", EndpointLogin, req, mock.AnythingOfType("*domain.AuthResult"), true).
		Run(func(args mock.Arguments) {
			out := args.Get(2).(*domain.AuthResult)
			out.AccessToken = "access"
			out.User.ID = "u1"
		}).Return(nil)

	res, err := New(m).Auth.Login(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "access", res.AccessToken)
	assert.Equal(t, "u1", res.User.ID)
	m.AssertExpectations(t)
}

func TestAuth_LoginValidatesBeforeSending(t *testing.T) {
	m := new(mockRequester)
	_, err := New(m).Auth.Login(context.Background(), LoginRequest{Email: "not-an-email"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	m.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuth_SignupPasswordPolicy(t *testing.T) {
	m := new(mockRequester)
	_, err := New(m).Auth.Signup(context.Background(), SignupRequest{
		Email: "ada@example.com", Password: "weakpassword", FirstName: "Ada", LastName: "L",
	})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, appErr.Data, "password")
}

func TestAuth_ReloadUsesRefreshProtocol(t *testing.T) {
	m := new(mockRequester)
	m.On("Get", EndpointReload, nil, mock.AnythingOfType("*domain.User"), false).Return(nil)

	_, err := New(m).Auth.Reload(context.Background())
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestAuth_ResetPasswordConfirmation(t *testing.T) {
	m := new(mockRequester)
	err := New(m).Auth.ResetPassword(context.Background(), ResetPasswordRequest{
		Token: "t", NewPassword: "Secret1!x", ConfirmPassword: "Secret1!y",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	ok := ResetPasswordRequest{Token: "t", NewPassword: "Secret1!x", ConfirmPassword: "Secret1!x"}
	m.On("Post", EndpointResetPassword, ok, nil, true).Return(nil)
	require.NoError(t, New(m).Auth.ResetPassword(context.Background(), ok))
	m.AssertExpectations(t)
}

func TestOAuth_RejectsUnknownProvider(t *testing.T) {
	m := new(mockRequester)
	_, err := New(m).OAuth.Redirect(context.Background(), "myspace")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	m.On("Post", "auth/google/callback", OAuthCallbackRequest{Code: "c", State: "s"}, mock.Anything, true).Return(nil)
	_, err = New(m).OAuth.Callback(context.Background(), ProviderGoogle, OAuthCallbackRequest{Code: "c", State: "s"})
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestCart_Calls(t *testing.T) {
	m := new(mockRequester)
	a := New(m)
	ctx := context.Background()

	m.On("Get", EndpointCart, nil, mock.Anything, false).Return(nil)
	items, err := a.Cart.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, items)

	add := AddCartItemRequest{FoodID: "f1", Quantity: 2}
	m.On("Post", EndpointCartItems, add, mock.Anything, false).Return(nil)
	_, err = a.Cart.AddItem(ctx, add)
	require.NoError(t, err)

	m.On("Patch", "cart/items/f1", UpdateCartItemQuantityRequest{Quantity: 4}, mock.Anything, false).Return(nil)
	_, err = a.Cart.UpdateItemQuantity(ctx, "f1", 4)
	require.NoError(t, err)

	m.On("Delete", "cart/items/f1", nil, nil, false).Return(nil)
	require.NoError(t, a.Cart.RemoveItem(ctx, "f1"))

	m.On("Delete", EndpointCart, nil, nil, false).Return(nil)
	require.NoError(t, a.Cart.Clear(ctx))

	m.AssertExpectations(t)
}

func TestCart_AddItemRejectsNonPositiveQuantity(t *testing.T) {
	_, err := New(new(mockRequester)).Cart.AddItem(context.Background(), AddCartItemRequest{FoodID: "f1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOrders_CreateRequiresItems(t *testing.T) {
	_, err := New(new(mockRequester)).Orders.Create(context.Background(), CreateOrderRequest{
		PaymentMethod: string(domain.PaymentCashOnDelivery),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestProducts_ListValidatesPage(t *testing.T) {
	take := 0
	_, err := New(new(mockRequester)).Products.List(context.Background(), GetFoodsRequest{Take: &take})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Over the real pipeline ---

func TestAPI_OverPipeline(t *testing.T) {
	var listBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/foods":
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &listBody)
			_, _ = w.Write([]byte(`{"totalCount":1,"items":[{"id":"f1","name":"Soup","price":4}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/orders/o1":
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":"o1","deliveryStatus":"preparing","items":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"no such route"}`))
		}
	}))
	defer server.Close()

	tokens := tokenstore.New(memory.New())
	require.NoError(t, tokens.Save(context.Background(), domain.AuthTokens{
		AccessToken: "access", AccessTokenExpiresAt: time.Now().Add(time.Hour),
	}))
	cfg := client.DefaultConfig(server.URL)
	cfg.HTTP.MaxRetries = 0
	a := New(client.New(cfg, tokens, logger.Discard()))

	category := "soup"
	page, err := a.Products.List(context.Background(), GetFoodsRequest{Category: &category})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, map[string]any{"category": "soup"}, listBody)

	order, err := a.Orders.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryPreparing, order.DeliveryStatus)

	_, err = a.Products.Get(context.Background(), "missing")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "no such route", appErr.Message)
}
