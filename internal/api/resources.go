package api

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/validator"
)

// UserAPI reads and edits the signed-in customer's profile.
type UserAPI struct {
	r Requester
}

// Profile returns the current profile.
func (u *UserAPI) Profile(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if err := u.r.Get(ctx, EndpointUserProfile, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile replaces the editable profile fields and returns the result.
func (u *UserAPI) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.User, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var out domain.User
	if err := u.r.Put(ctx, EndpointUserProfile, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CartAPI is the server-side cart.
type CartAPI struct {
	r Requester
}

// Get returns the server cart.
func (c *CartAPI) Get(ctx context.Context) ([]domain.CartLineItem, error) {
	var out GetCartResponse
	if err := c.r.Get(ctx, EndpointCart, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []domain.CartLineItem{}
	}
	return out.Items, nil
}

// AddItem adds quantity of a product and returns the resulting line.
func (c *CartAPI) AddItem(ctx context.Context, req AddCartItemRequest) (*domain.CartLineItem, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var out domain.CartLineItem
	if err := c.r.Post(ctx, EndpointCartItems, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateItemQuantity sets a line's quantity and returns the resulting line.
func (c *CartAPI) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) (*domain.CartLineItem, error) {
	if itemID == "" {
		return nil, apperrors.InvalidInput("item id is required")
	}
	var out domain.CartLineItem
	req := UpdateCartItemQuantityRequest{Quantity: quantity}
	if err := c.r.Patch(ctx, CartItemEndpoint(itemID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveItem deletes a line.
func (c *CartAPI) RemoveItem(ctx context.Context, itemID string) error {
	if itemID == "" {
		return apperrors.InvalidInput("item id is required")
	}
	return c.r.Delete(ctx, CartItemEndpoint(itemID), nil)
}

// Clear empties the server cart.
func (c *CartAPI) Clear(ctx context.Context) error {
	return c.r.Delete(ctx, EndpointCart, nil)
}

// OrderAPI places and lists orders.
type OrderAPI struct {
	r Requester
}

// Create places an order for the given cart lines.
func (o *OrderAPI) Create(ctx context.Context, req CreateOrderRequest) (*domain.OrderReceipt, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var out domain.OrderReceipt
	if err := o.r.Post(ctx, EndpointOrders, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the customer's orders, newest first as the server sends them.
func (o *OrderAPI) List(ctx context.Context) ([]domain.Order, error) {
	var out GetOrdersResponse
	if err := o.r.Get(ctx, EndpointOrders, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// Get returns one order.
func (o *OrderAPI) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}
	var out domain.Order
	if err := o.r.Get(ctx, OrderEndpoint(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProductAPI is the public catalog.
type ProductAPI struct {
	r Requester
}

// List returns one filtered page of products.
func (p *ProductAPI) List(ctx context.Context, req GetFoodsRequest) (*GetFoodsResponse, error) {
	if req.Take != nil {
		if err := validator.Var(*req.Take, "gte=1,lte=100", "take"); err != nil {
			return nil, err
		}
	}
	if req.Skip != nil {
		if err := validator.Var(*req.Skip, "gte=0", "skip"); err != nil {
			return nil, err
		}
	}
	var out GetFoodsResponse
	if err := p.r.Post(ctx, EndpointFoods, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the detail view of one product.
func (p *ProductAPI) Get(ctx context.Context, id string) (*domain.ProductDetail, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	var out domain.ProductDetail
	if err := p.r.Get(ctx, FoodEndpoint(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Categories returns the category list the server offers.
func (p *ProductAPI) Categories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if err := p.r.Get(ctx, EndpointFoodCategories, &out); err != nil {
		return nil, err
	}
	return out, nil
}
