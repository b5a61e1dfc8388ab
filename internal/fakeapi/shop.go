package fakeapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/slug"
)

// --- Catalog ---

func (s *Server) listFoods(w http.ResponseWriter, r *http.Request) {
	var req api.GetFoodsRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	skip, take := 0, pagination.DefaultTake
	if req.Skip != nil {
		skip = *req.Skip
	}
	if req.Take != nil {
		take = *req.Take
	}
	take = pagination.FromSkipTake(skip, take).Take()

	s.mu.Lock()
	matched := make([]domain.Product, 0, len(s.listing))
	for _, id := range s.listing {
		p := s.products[id]
		if matchesFilter(p, req) {
			matched = append(matched, cloneProduct(*p).Summary())
		}
	}
	s.mu.Unlock()

	httputil.WriteJSON(w, http.StatusOK, api.GetFoodsResponse{
		TotalCount: len(matched),
		Items:      pagination.Window(matched, skip, take),
	})
}

func matchesFilter(p *domain.ProductDetail, req api.GetFoodsRequest) bool {
	if req.Category != nil && *req.Category != "" && p.Category != *req.Category {
		return false
	}
	if req.IsAvailable != nil && p.IsAvailable != *req.IsAvailable {
		return false
	}
	if req.Keyword != nil && *req.Keyword != "" {
		kw := strings.ToLower(*req.Keyword)
		if !strings.Contains(strings.ToLower(p.Name), kw) && !strings.Contains(strings.ToLower(p.Description), kw) {
			return false
		}
	}
	return true
}

func (s *Server) getFood(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := s.Product(id)
	if !ok {
		s.fail(w, r, apperrors.NotFound("food", id))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, domain.Categories)
}

// --- Cart ---

// lineLocked refreshes the catalog fields of a stored line.
func (s *Server) lineLocked(item domain.CartLineItem) domain.CartLineItem {
	if p, ok := s.products[item.ID]; ok {
		line := cloneProduct(*p).Summary().LineItem()
		line.Quantity = item.Quantity
		line.IsSelected = item.IsSelected
		return line
	}
	return item
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	s.mu.Lock()
	stored := s.carts[userID]
	items := make([]domain.CartLineItem, len(stored))
	for i, item := range stored {
		items[i] = s.lineLocked(item)
	}
	s.mu.Unlock()
	httputil.WriteJSON(w, http.StatusOK, api.GetCartResponse{Items: items})
}

// addCartItem merges into an existing line: the quantities add up and the
// sum is clamped to stock.
func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req api.AddCartItemRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	userID := middleware.UserIDFromContext(r.Context())

	s.mu.Lock()
	line, created, err := s.addLocked(userID, req.FoodID, req.Quantity)
	s.mu.Unlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, line)
}

func (s *Server) addLocked(userID, foodID string, quantity int) (domain.CartLineItem, bool, error) {
	p, ok := s.products[foodID]
	if !ok {
		return domain.CartLineItem{}, false, apperrors.NotFound("food", foodID)
	}
	if !p.IsAvailable {
		return domain.CartLineItem{}, false, apperrors.Conflict(fmt.Sprintf("%s is out of stock", p.Name))
	}

	items := s.carts[userID]
	if i := domain.IndexOf(items, foodID); i >= 0 {
		items[i].Quantity = min(items[i].Quantity+quantity, p.StockQuantity)
		return s.lineLocked(items[i]), false, nil
	}

	line := cloneProduct(*p).Summary().LineItem()
	line.Quantity = min(quantity, p.StockQuantity)
	s.carts[userID] = append(items, line)
	return s.lineLocked(line), true, nil
}

// updateCartItem sets a quantity clamped to stock. Zero or less removes the
// line and answers with quantity 0.
func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateCartItemQuantityRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	itemID := chi.URLParam(r, "itemId")

	s.mu.Lock()
	items := s.carts[userID]
	i := domain.IndexOf(items, itemID)
	var line domain.CartLineItem
	if i >= 0 {
		stock := items[i].StockQuantity
		if p, ok := s.products[itemID]; ok {
			stock = p.StockQuantity
		}
		if req.Quantity <= 0 {
			line = s.lineLocked(items[i])
			line.Quantity = 0
			s.carts[userID] = append(items[:i:i], items[i+1:]...)
		} else {
			items[i].Quantity = min(req.Quantity, stock)
			line = s.lineLocked(items[i])
		}
	}
	s.mu.Unlock()

	if i < 0 {
		s.fail(w, r, apperrors.NotFound("cart item", itemID))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, line)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	itemID := chi.URLParam(r, "itemId")

	s.mu.Lock()
	items := s.carts[userID]
	i := domain.IndexOf(items, itemID)
	if i >= 0 {
		s.carts[userID] = append(items[:i:i], items[i+1:]...)
	}
	s.mu.Unlock()

	if i < 0 {
		s.fail(w, r, apperrors.NotFound("cart item", itemID))
		return
	}
	httputil.NoContent(w)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	s.mu.Lock()
	delete(s.carts, userID)
	s.mu.Unlock()
	httputil.NoContent(w)
}

// --- Orders ---

// createOrder orders the listed cart lines, takes them out of the cart and
// out of stock.
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req api.CreateOrderRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	method := domain.PaymentMethod(req.PaymentMethod)
	if !method.Available() {
		s.fail(w, r, apperrors.InvalidInput(fmt.Sprintf("payment method %q is not supported", req.PaymentMethod)))
		return
	}
	userID := middleware.UserIDFromContext(r.Context())

	s.mu.Lock()
	order, err := s.placeLocked(userID, method, req.CartItemIDs)
	s.mu.Unlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "order placed",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
		slog.Float64("total", order.TotalAmount),
	)
	httputil.WriteJSON(w, http.StatusCreated, domain.OrderReceipt{
		OrderID:        order.ID,
		SlugID:         order.SlugID,
		TotalAmount:    order.TotalAmount,
		PaymentMethod:  order.PaymentMethod,
		DeliveryStatus: order.DeliveryStatus,
		CreatedAt:      order.CreatedAt,
	})
}

func (s *Server) placeLocked(userID string, method domain.PaymentMethod, ids []string) (domain.Order, error) {
	cart := s.carts[userID]
	ordered := make(map[string]bool, len(ids))
	lines := make([]domain.CartLineItem, 0, len(ids))
	for _, id := range ids {
		if ordered[id] {
			continue
		}
		i := domain.IndexOf(cart, id)
		if i < 0 {
			return domain.Order{}, apperrors.InvalidInput(fmt.Sprintf("cart item %s is not in the cart", id))
		}
		line := s.lineLocked(cart[i])
		if p, ok := s.products[id]; !ok || p.StockQuantity < line.Quantity {
			return domain.Order{}, apperrors.Conflict(fmt.Sprintf("not enough %s in stock", line.Name))
		}
		ordered[id] = true
		lines = append(lines, line)
	}

	now := s.now().UTC()
	id := uuid.NewString()
	order := domain.Order{
		ID:                   id,
		SlugID:               slug.Reference("ORD", id, 8),
		PaymentMethod:        string(method),
		DeliveryStatus:       domain.DeliveryPlaced,
		CreatedAt:            now,
		UpdatedAt:            now,
		DeliveryStatusTiming: domain.DeliveryStatusTiming{OrderPlacedCompletedAt: &now},
	}
	for _, line := range lines {
		total := line.LineTotal()
		order.Items = append(order.Items, domain.OrderItem{
			ID:            uuid.NewString(),
			FoodID:        line.ID,
			FoodName:      line.Name,
			UnitPrice:     line.UnitPrice,
			DiscountPrice: line.EffectivePrice(),
			Quantity:      line.Quantity,
			TotalPrice:    total,
			ImageURL:      line.ImageURL,
		})
		order.TotalAmount += total

		p := s.products[line.ID]
		p.StockQuantity -= line.Quantity
		p.IsAvailable = p.StockQuantity > 0
	}

	remaining := make([]domain.CartLineItem, 0, len(cart))
	for _, item := range cart {
		if !ordered[item.ID] {
			remaining = append(remaining, item)
		}
	}
	s.carts[userID] = remaining
	s.orders[userID] = append([]domain.Order{order}, s.orders[userID]...)
	return cloneOrder(order), nil
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	s.mu.Lock()
	orders := make([]domain.Order, len(s.orders[userID]))
	for i, o := range s.orders[userID] {
		orders[i] = cloneOrder(o)
	}
	s.mu.Unlock()
	httputil.WriteJSON(w, http.StatusOK, api.GetOrdersResponse{Orders: orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	userID := middleware.UserIDFromContext(r.Context())

	s.mu.Lock()
	var (
		found domain.Order
		hit   bool
	)
	for _, o := range s.orders[userID] {
		if o.ID == id.String() {
			found, hit = cloneOrder(o), true
			break
		}
	}
	s.mu.Unlock()

	if !hit {
		s.fail(w, r, apperrors.NotFound("order", id.String()))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}
