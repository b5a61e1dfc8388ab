// Package app wires the storefront client: storage, the request pipeline,
// the typed API, the session controller, the cart engine, checkout and the
// optional analytics producer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/cartstore"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/file"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/internal/storage/redis"
	"github.com/utafrali/storefront/internal/tokenstore"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/tracing"
)

const (
	serviceName    = "storefront"
	serviceVersion = "0.1.0"
	closeTimeout   = 3 * time.Second
)

// Option customises New.
type Option func(*options)

type options struct {
	store           storage.Store
	producer        event.Producer
	onLoginRequired func(ctx context.Context)
}

// WithStore uses s instead of the configured storage backend. The app
// closes it.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithProducer publishes cart analytics through p regardless of the Kafka
// configuration.
func WithProducer(p event.Producer) Option {
	return func(o *options) { o.producer = p }
}

// WithLoginHook runs fn when the session expires for good.
func WithLoginHook(fn func(ctx context.Context)) Option {
	return func(o *options) { o.onLoginRequired = fn }
}

// App holds the wired components.
type App struct {
	API      *api.API
	Client   *client.Client
	Tokens   *tokenstore.Store
	Session  *session.Controller
	Cart     *cart.Engine
	Checkout *checkout.Service

	cfg            *config.Config
	logger         *slog.Logger
	store          storage.Store
	producer       *pkgkafka.Producer
	health         *health.Handler
	tracerShutdown func(context.Context) error
}

// New builds the dependency graph. Nothing talks to the API until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.TracingEndpoint,
		Insecure:       true,
		SampleRate:     cfg.TracingSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	store := o.store
	if store == nil {
		store, err = openStore(ctx, cfg)
		if err != nil {
			_ = tracerShutdown(ctx)
			return nil, err
		}
	}
	logger.Debug("storage ready", slog.String("backend", cfg.StorageBackend))

	tokens := tokenstore.New(store)
	c := client.New(clientConfig(cfg), tokens, logger)
	endpoints := api.New(c)

	a := &App{
		API:            endpoints,
		Client:         c,
		Tokens:         tokens,
		cfg:            cfg,
		logger:         logger,
		store:          store,
		health:         health.NewHandler(),
		tracerShutdown: tracerShutdown,
	}

	producer := o.producer
	if producer == nil && cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		producer = a.producer
		logger.Debug("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	var publisher cart.Publisher
	if producer != nil {
		publisher = event.NewCartPublisher(producer, a.userID)
	}

	a.Cart = cart.New(cart.Config{
		Auth:      cart.TokenAuth(tokens),
		Local:     cartstore.New(store, logger),
		Remote:    endpoints.Cart,
		Publisher: publisher,
		Logger:    logger,
	})
	a.Session = session.New(session.Config{
		Auth:            endpoints.Auth,
		OAuth:           endpoints.OAuth,
		Users:           endpoints.Users,
		Tokens:          tokens,
		Cart:            a.Cart,
		OnLoginRequired: o.onLoginRequired,
		Logger:          logger,
	})
	c.SetNavigator(a.Session)
	a.Checkout = checkout.New(endpoints.Orders, a.Cart, a.Session, logger)

	a.registerChecks()
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case storage.BackendMemory:
		return memory.New(), nil
	case storage.BackendFile:
		s, err := file.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open file storage: %w", err)
		}
		return s, nil
	case storage.BackendRedis:
		s, err := redis.Open(ctx, redis.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.StorageNamespace,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func clientConfig(cfg *config.Config) client.Config {
	ccfg := client.DefaultConfig(cfg.APIBaseURL)
	ccfg.HTTP.Timeout = cfg.RequestTimeout
	ccfg.HTTP.MaxRetries = cfg.MaxRetries
	ccfg.HTTP.RetryWaitMin = cfg.RetryWaitMin
	ccfg.HTTP.RetryWaitMax = cfg.RetryWaitMax
	ccfg.RateLimit = cfg.RateLimit
	ccfg.RateBurst = cfg.RateBurst
	if cfg.CircuitBreaker {
		cb := httpclient.DefaultCircuitBreakerConfig(serviceName + "-api")
		ccfg.CircuitBreaker = &cb
	}
	return ccfg
}

// userID keys analytics events by the signed-in user, read from the stored
// access token.
func (a *App) userID(ctx context.Context) string {
	token, err := a.Tokens.AccessToken(ctx)
	if err != nil || token == "" {
		return ""
	}
	claims, err := tokenstore.ClaimsFromToken(token)
	if err != nil {
		return ""
	}
	return claims.UserID()
}

func (a *App) registerChecks() {
	a.health.RegisterCritical("api", func(ctx context.Context) error {
		_, err := a.API.Products.Categories(ctx)
		return err
	})
	a.health.RegisterCritical("storage", func(ctx context.Context) error {
		_, _, err := a.store.Get(ctx, storage.KeyAccessToken)
		return err
	})
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		a.health.RegisterCritical("storage_ping", p.Ping)
	}
	if a.producer != nil {
		a.health.RegisterNonCritical("kafka", a.producer.Ping)
	}
}

// Start restores the session and loads the cart. Failures of either end in
// a defined rest state and are not returned.
func (a *App) Start(ctx context.Context) {
	a.Session.Bootstrap(ctx)
	a.Cart.Load(ctx)
	a.logger.DebugContext(ctx, "storefront started",
		slog.Bool("authenticated", a.Session.Authenticated()),
		slog.String("cart", a.Cart.State().String()),
		slog.Int("cart_lines", len(a.Cart.Items())),
	)
}

// Health runs the dependency checks.
func (a *App) Health(ctx context.Context) health.Response {
	return a.health.Check(ctx)
}

// Close flushes spans and releases the producer and storage.
func (a *App) Close() error {
	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
