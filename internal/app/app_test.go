package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/cartstore"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/fakeapi"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

const (
	email    = "ada@example.com"
	password = "Secret1!pw"
	pizza    = "margherita-pizza"
	soup     = "tomato-soup"
)

type recordingProducer struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (p *recordingProducer) Publish(_ context.Context, topic string, ev *kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, ev.Key)
	return nil
}

type fixture struct {
	app   *App
	srv   *fakeapi.Server
	store storage.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	scfg := fakeapi.DefaultConfig()
	scfg.Logger = logger.Discard()
	srv := fakeapi.New(scfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	_, err := srv.Register(email, password, "Ada", "Lovelace")
	require.NoError(t, err)

	cfg := testConfig(t, ts.URL)
	store := memory.New()
	a, err := New(context.Background(), cfg, logger.Discard(), append([]Option{WithStore(store)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return &fixture{app: a, srv: srv, store: store}
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.APIBaseURL = baseURL
	cfg.StorageBackend = storage.BackendMemory
	cfg.MaxRetries = 0
	cfg.KafkaBrokers = nil
	cfg.TracingEnabled = false
	return cfg
}

func (f *fixture) product(t *testing.T, id string) domain.CartLineItem {
	t.Helper()
	detail, err := f.app.API.Products.Get(context.Background(), id)
	require.NoError(t, err)
	return detail.Summary().LineItem()
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	_, err := f.app.Session.Login(context.Background(), api.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
}

func TestStart_Guest(t *testing.T) {
	f := newFixture(t)
	f.app.Start(context.Background())

	assert.True(t, f.app.Session.Initialized())
	assert.False(t, f.app.Session.Authenticated())
	assert.Equal(t, cart.StateReadyGuest, f.app.Cart.State())
	assert.Empty(t, f.app.Cart.Items())
}

func TestGuestCartMigratesOnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app.Start(ctx)

	require.NoError(t, f.app.Cart.AddItem(ctx, f.product(t, pizza), 2))
	require.NoError(t, f.app.Cart.AddItem(ctx, f.product(t, soup), 1))
	_, ok, err := f.store.Get(ctx, storage.KeyCartItems)
	require.NoError(t, err)
	assert.True(t, ok)

	f.login(t)

	assert.Equal(t, cart.StateReadyAuthenticated, f.app.Cart.State())
	items := f.app.Cart.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3, cart.TotalQuantity(items))

	user := f.app.Session.User()
	require.NotNil(t, user)
	assert.Len(t, f.srv.Cart(user.ID), 2)

	_, ok, err = f.store.Get(ctx, storage.KeyCartItems)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionSurvivesRestart(t *testing.T) {
	scfg := fakeapi.DefaultConfig()
	scfg.Logger = logger.Discard()
	srv := fakeapi.New(scfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	_, err := srv.Register(email, password, "Ada", "Lovelace")
	require.NoError(t, err)

	cfg := testConfig(t, ts.URL)
	cfg.StorageBackend = storage.BackendFile
	cfg.StoragePath = filepath.Join(t.TempDir(), "state.toml")
	ctx := context.Background()

	first, err := New(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	_, err = first.Session.Login(ctx, api.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	second.Start(ctx)

	require.NotNil(t, second.Session.User())
	assert.Equal(t, email, second.Session.User().Email)
	assert.Equal(t, cart.StateReadyAuthenticated, second.Cart.State())
}

func TestExpiredAccessTokenIsRefreshedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app.Start(ctx)
	f.login(t)
	before, err := f.app.Tokens.AccessToken(ctx)
	require.NoError(t, err)

	f.srv.ExpireAccessTokens()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.app.API.Cart.Get(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.srv.Hits(http.MethodPost, "/auth/refresh"))
	after, err := f.app.Tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.True(t, f.app.Session.Authenticated())
}

func TestEndedSessionRedirectsToLogin(t *testing.T) {
	var redirects atomic.Int32
	f := newFixture(t, WithLoginHook(func(context.Context) { redirects.Add(1) }))
	ctx := context.Background()
	f.app.Start(ctx)
	f.login(t)
	user := f.app.Session.User()
	require.NotNil(t, user)

	f.srv.EndSessions(user.ID)
	f.srv.ExpireAccessTokens()

	_, err := f.app.API.Orders.List(ctx)
	require.Error(t, err)

	assert.Equal(t, int32(1), redirects.Load())
	assert.False(t, f.app.Session.Authenticated())
	tokens, err := f.app.Tokens.Tokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
	assert.Equal(t, cart.StateUninitialized, f.app.Cart.State())
}

func TestSignedInAddsMatchServerCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app.Start(ctx)
	f.login(t)
	user := f.app.Session.User()
	require.NotNil(t, user)

	line := f.product(t, soup)
	require.NoError(t, f.app.Cart.AddItem(ctx, line, 2))
	require.NoError(t, f.app.Cart.AddItem(ctx, line, 3))

	items := f.app.Cart.Items()
	server := f.srv.Cart(user.ID)
	require.Len(t, items, 1)
	require.Len(t, server, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, server[0].Quantity, items[0].Quantity)
}

func TestSessionEndingDuringLoadKeepsGuestCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app.Start(ctx)
	f.login(t)
	user := f.app.Session.User()
	require.NotNil(t, user)

	guest := cartstore.New(f.store, logger.Discard())
	leftover := f.product(t, pizza)
	leftover.Quantity = 1
	require.NoError(t, guest.Save(ctx, []domain.CartLineItem{leftover}))

	f.srv.EndSessions(user.ID)
	f.srv.ExpireAccessTokens()
	f.app.Cart.Load(ctx)

	assert.False(t, f.app.Session.Authenticated())
	assert.Equal(t, cart.StateUninitialized, f.app.Cart.State())
	assert.False(t, f.app.Cart.Initialized())

	require.NoError(t, f.app.Cart.AddItem(ctx, f.product(t, soup), 1))
	assert.Equal(t, cart.StateReadyGuest, f.app.Cart.State())
	stored, err := guest.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, pizza, stored[0].ID)
	assert.Equal(t, soup, stored[1].ID)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app.Start(ctx)
	f.login(t)

	require.NoError(t, f.app.Cart.AddItem(ctx, f.product(t, pizza), 2))
	require.NoError(t, f.app.Cart.AddItem(ctx, f.product(t, soup), 1))
	require.NoError(t, f.app.Cart.SetItemSelection(soup, false))

	sum := f.app.Checkout.Summary()
	assert.Equal(t, 2, sum.Quantity)
	assert.Equal(t, 16.0, sum.Subtotal)

	receipt, err := f.app.Checkout.PlaceOrder(ctx, domain.PaymentCashOnDelivery)
	require.NoError(t, err)
	assert.Equal(t, 16.0, receipt.TotalAmount)

	items := f.app.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, soup, items[0].ID)

	orders, err := f.app.Checkout.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, receipt.OrderID, orders[0].ID)

	stock, ok := f.srv.Product(pizza)
	require.True(t, ok)
	assert.Equal(t, 18, stock.StockQuantity)
}

func TestLogoutResetsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app.Start(ctx)
	f.login(t)
	require.NoError(t, f.app.Cart.AddItem(ctx, f.product(t, pizza), 1))

	require.NoError(t, f.app.Session.Logout(ctx))

	assert.False(t, f.app.Session.Authenticated())
	assert.Equal(t, cart.StateUninitialized, f.app.Cart.State())
	assert.Empty(t, f.app.Cart.Items())

	f.app.Cart.Load(ctx)
	assert.Equal(t, cart.StateReadyGuest, f.app.Cart.State())
	assert.Empty(t, f.app.Cart.Items())
}

func TestCartEventsArePublished(t *testing.T) {
	producer := &recordingProducer{}
	f := newFixture(t, WithProducer(producer))
	ctx := context.Background()
	f.app.Start(ctx)

	require.NoError(t, f.app.Cart.AddItem(ctx, f.product(t, pizza), 1))
	f.login(t)
	user := f.app.Session.User()
	require.NotNil(t, user)

	producer.mu.Lock()
	defer producer.mu.Unlock()
	require.NotEmpty(t, producer.topics)
	assert.Equal(t, "storefront.cart.item-added", producer.topics[0])
	assert.Equal(t, "guest", producer.keys[0])
	assert.Equal(t, user.ID, producer.keys[len(producer.keys)-1])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	res := f.app.Health(context.Background())
	assert.Equal(t, health.StatusUp, res.Status)
	assert.ElementsMatch(t, []string{"api", "storage"}, res.Names())
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.StorageBackend = "floppy"
	_, err := New(context.Background(), cfg, logger.Discard())
	assert.ErrorContains(t, err, "unknown storage backend")
}
