package api

import "github.com/utafrali/storefront/internal/domain"

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest is the body of a registration call.
type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,password"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
}

// RequestPasswordResetRequest asks for a reset link.
type RequestPasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest sets a new password with a reset token.
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// AuthResponse is returned by login, signup and the OAuth callback.
type AuthResponse = domain.AuthResult

// UpdateProfileRequest replaces the editable profile fields.
type UpdateProfileRequest struct {
	FirstName string  `json:"firstName" validate:"required,max=100"`
	LastName  string  `json:"lastName" validate:"required,max=100"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
}

// OAuth providers the API accepts.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// OAuthRedirectResponse carries the provider's consent page URL.
type OAuthRedirectResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// OAuthCallbackRequest hands the provider's code back to the API.
type OAuthCallbackRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state,omitempty"`
}

// AddCartItemRequest adds quantity of a product to the server cart.
type AddCartItemRequest struct {
	FoodID   string `json:"foodId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

// UpdateCartItemQuantityRequest sets a line's quantity.
type UpdateCartItemQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// GetCartResponse is the server cart.
type GetCartResponse struct {
	Items []domain.CartLineItem `json:"items"`
}

// CreateOrderRequest places an order for the given cart lines.
type CreateOrderRequest struct {
	PaymentMethod string   `json:"paymentMethod" validate:"required"`
	CartItemIDs   []string `json:"cartItemIds" validate:"required,min=1"`
}

// GetOrdersResponse lists the user's orders.
type GetOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// GetFoodsRequest filters the product list. Nil fields are not sent.
type GetFoodsRequest struct {
	Skip        *int    `json:"skip,omitempty"`
	Take        *int    `json:"take,omitempty"`
	Category    *string `json:"category,omitempty"`
	Keyword     *string `json:"keyword,omitempty"`
	IsAvailable *bool   `json:"isAvailable,omitempty"`
}

// GetFoodsResponse is one page of products.
type GetFoodsResponse struct {
	TotalCount int              `json:"totalCount"`
	Items      []domain.Product `json:"items"`
}
