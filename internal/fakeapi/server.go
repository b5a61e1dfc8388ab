// Package fakeapi is an in-memory storefront backend that speaks the same
// HTTP contract as the real API. It issues HS256 JWT pairs, keeps per-user
// carts and orders, and serves the food catalog. Client tests and the demo
// command run against it.
package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/slug"
)

const (
	serverName    = "fakeapi"
	catalogMaxAge = 5 * time.Minute
	passwordCost  = bcrypt.MinCost
)

// Config configures a Server.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// Catalog seeds the products. Entries without an id get one derived
	// from the name.
	Catalog []domain.ProductDetail
	CORS    middleware.CORSConfig
	Logger  *slog.Logger
	Now     func() time.Time
}

// DefaultConfig returns short-lived access tokens, week-long refresh tokens
// and the default catalog.
func DefaultConfig() Config {
	return Config{
		Secret:     "storefront-fakeapi-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   time.Hour,
		Catalog:    DefaultCatalog(),
		CORS:       middleware.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

type account struct {
	user         domain.User
	passwordHash []byte
}

type resetGrant struct {
	userID    string
	expiresAt time.Time
}

// Server is the fake backend. Its methods are safe for concurrent use.
type Server struct {
	cfg     Config
	tokens  *issuer
	logger  *slog.Logger
	health  *health.Handler
	now     func() time.Time
	handler http.Handler

	mu          sync.Mutex
	accounts    map[string]*account
	emails      map[string]string
	products    map[string]*domain.ProductDetail
	listing     []string
	carts       map[string][]domain.CartLineItem
	orders      map[string][]domain.Order
	resets      map[string]resetGrant
	mailbox     map[string]string
	oauthStates map[string]string
	sessions    map[string]int
	usedRefresh map[string]struct{}
	epoch       int
	hits        map[string]int
}

// New builds a server from cfg. Zero durations and an empty secret take
// their DefaultConfig values.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Secret == "" {
		cfg.Secret = def.Secret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = def.ResetTTL
	}
	if cfg.Catalog == nil {
		cfg.Catalog = def.Catalog
	}
	if cfg.CORS.AllowedOrigins == nil {
		cfg.CORS = def.CORS
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg:         cfg,
		logger:      cfg.Logger.With(slog.String("component", serverName)),
		health:      health.NewHandler(),
		now:         cfg.Now,
		accounts:    make(map[string]*account),
		emails:      make(map[string]string),
		products:    make(map[string]*domain.ProductDetail),
		carts:       make(map[string][]domain.CartLineItem),
		orders:      make(map[string][]domain.Order),
		resets:      make(map[string]resetGrant),
		mailbox:     make(map[string]string),
		oauthStates: make(map[string]string),
		sessions:    make(map[string]int),
		usedRefresh: make(map[string]struct{}),
		hits:        make(map[string]int),
	}
	s.tokens = &issuer{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	for _, p := range cfg.Catalog {
		s.addProduct(p)
	}
	s.health.RegisterCritical("catalog", s.checkCatalog)
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.RequestLogging(s.logger))
	r.Use(middleware.Tracing(serverName))
	r.Use(middleware.PrometheusMetrics(serverName))
	r.Use(middleware.CORS(s.cfg.CORS))
	r.Use(s.countHits)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, &apperrors.AppError{
			Code: "NOT_FOUND", Message: "no such route", Status: http.StatusNotFound, Err: apperrors.ErrNotFound,
		}, s.logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, &apperrors.AppError{
			Code: "METHOD_NOT_ALLOWED", Message: "method not allowed", Status: http.StatusMethodNotAllowed,
		}, s.logger)
	})

	r.Get("/health/live", s.health.LivenessHandler())
	r.Get("/health/ready", s.health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Public
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestLogger(s.logger))

		r.Post("/auth/login", s.login)
		r.Post("/auth/register", s.register)
		r.Post("/auth/logout", s.logout)
		r.Post("/auth/refresh", s.refresh)
		r.Post("/auth/request-password-reset", s.requestPasswordReset)
		r.Post("/auth/reset-password", s.resetPassword)
		r.Get("/auth/{provider}/redirect", s.oauthRedirect)
		r.Post("/auth/{provider}/callback", s.oauthCallback)

		r.Post("/foods", s.listFoods)
		r.With(middleware.CacheControl(catalogMaxAge)).Get("/foods/categories", s.categories)
		r.With(middleware.CacheControl(catalogMaxAge)).Get("/foods/{id}", s.getFood)
	})

	// Signed in
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.validateAccess))
		r.Use(middleware.RequestLogger(s.logger))

		r.Get("/auth/reload", s.reload)
		r.Get("/users/profile", s.profile)
		r.Put("/users/profile", s.updateProfile)

		r.Get("/cart", s.getCart)
		r.Delete("/cart", s.clearCart)
		r.Post("/cart/items", s.addCartItem)
		r.Patch("/cart/items/{itemId}", s.updateCartItem)
		r.Delete("/cart/items/{itemId}", s.removeCartItem)

		r.Post("/orders", s.createOrder)
		r.Get("/orders", s.listOrders)
		r.Get("/orders/{id}", s.getOrder)
	})

	return r
}

// countHits records requests per method and route pattern for Hits.
func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			pattern = rctx.RoutePattern()
		}
		s.mu.Lock()
		s.hits[r.Method+" "+pattern]++
		s.mu.Unlock()
	})
}

// Hits is how many requests reached the route, e.g. Hits("POST", "/auth/refresh").
func (s *Server) Hits(method, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+pattern]
}

func (s *Server) checkCatalog(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.products) == 0 {
		return errors.New("catalog is empty")
	}
	return nil
}

// Health runs the server's own readiness checks.
func (s *Server) Health(ctx context.Context) health.Response {
	return s.health.Check(ctx)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, s.logger)
}

// --- Seeding and inspection ---

func (s *Server) addProduct(p domain.ProductDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = slug.Unique(p.Name, func(id string) bool {
			_, ok := s.products[id]
			return ok
		})
	}
	p.ImageURLs = append([]string(nil), p.ImageURLs...)
	p.IsAvailable = p.IsAvailable && p.StockQuantity > 0
	s.products[p.ID] = &p
	s.listing = append(s.listing, p.ID)
}

// Register creates an account directly, as the register endpoint would.
func (s *Server) Register(email, password, firstName, lastName string) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(email)
	if _, ok := s.emails[key]; ok {
		return domain.User{}, apperrors.Conflict("an account with this email already exists")
	}
	u := domain.User{
		ID:        uuid.NewString(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     key,
	}
	s.accounts[u.ID] = &account{user: u, passwordHash: hash}
	s.emails[key] = u.ID
	return u, nil
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid, so the next call of each client goes through a
// refresh.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// EndSessions invalidates every token of the user, as a logout would.
func (s *Server) EndSessions(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID]++
}

// ResetToken returns the last password reset token mailed to email.
func (s *Server) ResetToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.mailbox[normalizeEmail(email)]
	return token, ok
}

// Product returns the product with the given id.
func (s *Server) Product(id string) (domain.ProductDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.ProductDetail{}, false
	}
	return cloneProduct(*p), true
}

// SetStock sets a product's stock; availability follows it.
func (s *Server) SetStock(id string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return apperrors.NotFound("food", id)
	}
	p.StockQuantity = quantity
	p.IsAvailable = quantity > 0
	return nil
}

// Cart returns the server cart of a user.
func (s *Server) Cart(userID string) []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.carts[userID])
}

// AdvanceDelivery moves an order to its next delivery status.
func (s *Server) AdvanceDelivery(orderID string) (domain.DeliveryStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, orders := range s.orders {
		for i := range orders {
			o := &orders[i]
			if o.ID != orderID {
				continue
			}
			step := o.DeliveryStatus.Step()
			if step < 0 || step+1 >= len(domain.DeliveryTimeline) {
				return o.DeliveryStatus, apperrors.Conflict(fmt.Sprintf("order is already %s", o.DeliveryStatus))
			}
			now := s.now().UTC()
			next := domain.DeliveryTimeline[step+1]
			o.DeliveryStatus = next
			o.UpdatedAt = now
			switch next {
			case domain.DeliveryPreparing:
				o.DeliveryStatusTiming.PreparingCompletedAt = &now
			case domain.DeliveryOnTheWay:
				o.DeliveryStatusTiming.OnTheWayCompletedAt = &now
			case domain.DeliveryDelivered:
				o.DeliveryStatusTiming.DeliveredCompletedAt = &now
			}
			return next, nil
		}
	}
	return "", apperrors.NotFound("order", orderID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneProduct(p domain.ProductDetail) domain.ProductDetail {
	p.ImageURLs = append([]string(nil), p.ImageURLs...)
	if p.DiscountPrice != nil {
		p.DiscountPrice = domain.Price(*p.DiscountPrice)
	}
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}
