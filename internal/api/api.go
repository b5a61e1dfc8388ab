// Package api wraps the storefront REST endpoints in typed calls over the
// request pipeline.
package api

import (
	"context"
	"net/url"

	"github.com/utafrali/storefront/internal/client"
)

// Endpoint paths, relative to the API base URL.
const (
	EndpointLogin                = "auth/login"
	EndpointSignup               = "auth/register"
	EndpointLogout               = "auth/logout"
	EndpointRefresh              = client.RefreshEndpoint
	EndpointReload               = "auth/reload"
	EndpointRequestPasswordReset = "auth/request-password-reset"
	EndpointResetPassword        = "auth/reset-password"

	EndpointUserProfile = "users/profile"

	EndpointCart      = "cart"
	EndpointCartItems = "cart/items"

	EndpointOrders = "orders"

	EndpointFoods          = "foods"
	EndpointFoodCategories = "foods/categories"
)

// OAuthRedirectEndpoint is the redirect endpoint of provider.
func OAuthRedirectEndpoint(provider string) string {
	return "auth/" + url.PathEscape(provider) + "/redirect"
}

// OAuthCallbackEndpoint is the callback endpoint of provider.
func OAuthCallbackEndpoint(provider string) string {
	return "auth/" + url.PathEscape(provider) + "/callback"
}

// CartItemEndpoint addresses one cart line.
func CartItemEndpoint(itemID string) string {
	return EndpointCartItems + "/" + url.PathEscape(itemID)
}

// OrderEndpoint addresses one order.
func OrderEndpoint(id string) string {
	return EndpointOrders + "/" + url.PathEscape(id)
}

// FoodEndpoint addresses one product.
func FoodEndpoint(id string) string {
	return EndpointFoods + "/" + url.PathEscape(id)
}

// Requester is the part of *client.Client the wrappers use.
type Requester interface {
	Get(ctx context.Context, endpoint string, out any, opts ...client.Option) error
	Post(ctx context.Context, endpoint string, body, out any, opts ...client.Option) error
	Put(ctx context.Context, endpoint string, body, out any, opts ...client.Option) error
	Patch(ctx context.Context, endpoint string, body, out any, opts ...client.Option) error
	Delete(ctx context.Context, endpoint string, out any, opts ...client.Option) error
}

var _ Requester = (*client.Client)(nil)

// API groups the endpoint wrappers.
type API struct {
	Auth     *AuthAPI
	OAuth    *OAuthAPI
	Users    *UserAPI
	Cart     *CartAPI
	Orders   *OrderAPI
	Products *ProductAPI
}

// New returns the wrappers over r.
func New(r Requester) *API {
	return &API{
		Auth:     &AuthAPI{r: r},
		OAuth:    &OAuthAPI{r: r},
		Users:    &UserAPI{r: r},
		Cart:     &CartAPI{r: r},
		Orders:   &OrderAPI{r: r},
		Products: &ProductAPI{r: r},
	}
}
