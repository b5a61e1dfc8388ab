// Package client is the storefront's API request pipeline: request
// construction, interceptors, response parsing, error classification and
// the single-flight token refresh protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/tracing"
)

// RefreshEndpoint is where a refresh token is exchanged for a new pair.
const RefreshEndpoint = "auth/refresh"

// maxResponseBody caps how much of a response is read.
const maxResponseBody = 10 << 20

const (
	headerAuthorization = "Authorization"
	headerXSRF          = "X-XSRF-TOKEN"
	headerCorrelationID = "X-Correlation-ID"
)

// Navigator moves the application to its login entry point. It is called
// when the session can no longer be recovered.
type Navigator interface {
	RedirectToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context)

// RedirectToLogin calls f.
func (f NavigatorFunc) RedirectToLogin(ctx context.Context) { f(ctx) }

// TokenStore is the token persistence the pipeline reads per request and
// rewrites on refresh.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, error)
	Tokens(ctx context.Context) (domain.AuthTokens, error)
	RefreshTokenUsable(ctx context.Context, now time.Time) (string, bool, error)
	XSRFToken(ctx context.Context) (string, error)
	Save(ctx context.Context, t domain.AuthTokens) error
	Clear(ctx context.Context) error
}

// RequestInterceptor may modify an outgoing request.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor may inspect or modify a response before it is read.
type ResponseInterceptor func(resp *http.Response) error

// Config holds pipeline configuration.
type Config struct {
	BaseURL        string
	DefaultHeaders map[string]string
	HTTP           httpclient.Config

	// CircuitBreaker guards the transport when non-nil.
	CircuitBreaker *httpclient.CircuitBreakerConfig

	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	// RefreshTimeout bounds a token refresh. Defaults to HTTP.Timeout.
	RefreshTimeout time.Duration
}

// DefaultConfig returns a configuration for baseURL with the transport
// defaults and no breaker or rate limit.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		HTTP:    httpclient.DefaultConfig(),
	}
}

// Client sends API requests. It is safe for concurrent use.
type Client struct {
	baseURL        string
	defaultHeaders map[string]string
	doer           httpclient.Doer
	tokens         TokenStore
	limiter        *rate.Limiter
	logger         *slog.Logger
	tracer         trace.Tracer
	refresher      *refresher
	now            func() time.Time

	mu               sync.RWMutex
	navigator        Navigator
	reqInterceptors  []RequestInterceptor
	respInterceptors []ResponseInterceptor
}

// New builds a client over the retrying transport of pkg/httpclient,
// wrapped in a circuit breaker when configured.
func New(cfg Config, tokens TokenStore, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	var doer httpclient.Doer = httpclient.New(cfg.HTTP)
	if cfg.CircuitBreaker != nil {
		doer = httpclient.NewCircuitBreakerClient(doer, *cfg.CircuitBreaker, logger)
	}
	return NewWithDoer(cfg, doer, tokens, logger)
}

// NewWithDoer builds a client that sends every request through doer.
func NewWithDoer(cfg Config, doer httpclient.Doer, tokens TokenStore, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for k, v := range cfg.DefaultHeaders {
		headers[k] = v
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		defaultHeaders: headers,
		doer:           doer,
		tokens:         tokens,
		logger:         logger,
		tracer:         tracing.Tracer(),
		now:            time.Now,
		navigator:      NavigatorFunc(func(context.Context) {}),
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = cfg.HTTP.Timeout
	}
	if timeout <= 0 {
		timeout = httpclient.DefaultConfig().Timeout
	}

	c.refresher = &refresher{
		currentToken: tokens.AccessToken,
		refresh:      c.refreshTokens,
		unauthorized: c.unauthorized,
		timeout:      timeout,
		logger:       logger,
	}
	return c
}

// SetNavigator installs the login redirect hook.
func (c *Client) SetNavigator(n Navigator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigator = n
}

// AddRequestInterceptor appends a request interceptor. Interceptors run in
// registration order after the default headers are set.
func (c *Client) AddRequestInterceptor(i RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqInterceptors = append(c.reqInterceptors, i)
}

// AddResponseInterceptor appends a response interceptor.
func (c *Client) AddResponseInterceptor(i ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respInterceptors = append(c.respInterceptors, i)
}

// RefreshState reports whether a token refresh is in flight.
func (c *Client) RefreshState() RefreshState {
	return c.refresher.State()
}

// Request performs one API call and decodes a 2xx payload into out, which
// may be nil. Every failure is an *apperrors.AppError.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions, out any) (*Response, error) {
	resp, sentToken, err := c.send(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && !opts.SkipAuthRefresh {
		resp, err = c.refresher.recover(ctx, sentToken, func(ctx context.Context) (*Response, error) {
			r, _, err := c.send(ctx, endpoint, opts)
			return r, err
		})
		if err != nil {
			return nil, err
		}
	}

	if !resp.OK() {
		return resp, httpclient.ErrorFromBody(resp.Status, resp.Body)
	}
	if err := resp.Decode(out); err != nil {
		return resp, apperrors.Transport(err)
	}
	return resp, nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, out any, opts ...Option) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out, opts)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any, opts ...Option) error {
	return c.do(ctx, http.MethodPost, endpoint, body, out, opts)
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body, out any, opts ...Option) error {
	return c.do(ctx, http.MethodPut, endpoint, body, out, opts)
}

// Patch sends a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, endpoint string, body, out any, opts ...Option) error {
	return c.do(ctx, http.MethodPatch, endpoint, body, out, opts)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, out any, opts ...Option) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, out, opts)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any, opts []Option) error {
	ro := RequestOptions{Method: method, Body: body}
	for _, opt := range opts {
		opt(&ro)
	}
	_, err := c.Request(ctx, endpoint, ro, out)
	return err
}

// send performs a single HTTP exchange. Non-2xx responses are returned as
// responses; only failures to get one are errors. It also returns the
// access token the request carried.
func (c *Client) send(ctx context.Context, endpoint string, opts RequestOptions) (*Response, string, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	resource := resourceOf(endpoint)

	ctx, span := c.tracer.Start(ctx, method+" "+resource,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("storefront.endpoint", endpoint),
		),
	)
	defer span.End()

	target, err := c.buildURL(endpoint, opts.Params)
	if err != nil {
		return nil, "", apperrors.InvalidInput(err.Error())
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, "", apperrors.InvalidInput(fmt.Sprintf("encode request body: %v", err))
		}
		body = bytes.NewReader(data)
	}

	// Wait only fails when the context ends, or would end, before a token
	// is available.
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return nil, "", apperrors.Timeout()
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", apperrors.InvalidInput(err.Error())
	}

	token, err := c.decorate(ctx, req, opts.Headers)
	if err != nil {
		return nil, "", c.classify(ctx, span, err)
	}

	start := time.Now()
	httpResp, err := c.doer.Do(ctx, req)
	elapsed := time.Since(start)
	apiRequestDuration.WithLabelValues(method, resource).Observe(elapsed.Seconds())
	if err != nil {
		apiRequestsTotal.WithLabelValues(method, resource, "error").Inc()
		c.logger.DebugContext(ctx, "api request failed",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, token, c.classify(ctx, span, err)
	}

	resp, err := c.readResponse(httpResp)
	if err != nil {
		apiRequestsTotal.WithLabelValues(method, resource, "error").Inc()
		return nil, token, c.classify(ctx, span, err)
	}

	apiRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(resp.Status)).Inc()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	if resp.Status >= 500 {
		span.SetStatus(codes.Error, resp.StatusText)
	}

	c.logger.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.Status),
		slog.Duration("duration", elapsed),
	)
	return resp, token, nil
}

// decorate sets headers in precedence order: defaults, bearer token, XSRF
// token, correlation id, trace context, per-call headers. Request
// interceptors run last.
func (c *Client) decorate(ctx context.Context, req *http.Request, headers map[string]string) (string, error) {
	for k, v := range c.defaultHeaders {
		req.Header.Set(k, v)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}

	xsrf, err := c.tokens.XSRFToken(ctx)
	if err != nil {
		return token, err
	}
	if xsrf != "" {
		req.Header.Set(headerXSRF, xsrf)
	}

	correlationID := logger.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set(headerCorrelationID, correlationID)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.mu.RLock()
	interceptors := c.reqInterceptors
	c.mu.RUnlock()
	for _, intercept := range interceptors {
		if err := intercept(req); err != nil {
			return token, fmt.Errorf("request interceptor: %w", err)
		}
	}
	return token, nil
}

func (c *Client) readResponse(httpResp *http.Response) (*Response, error) {
	defer func() { _ = httpResp.Body.Close() }()

	c.mu.RLock()
	interceptors := c.respInterceptors
	c.mu.RUnlock()
	for _, intercept := range interceptors {
		if err := intercept(httpResp); err != nil {
			return nil, fmt.Errorf("response interceptor: %w", err)
		}
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		Status:      httpResp.StatusCode,
		StatusText:  http.StatusText(httpResp.StatusCode),
		Headers:     httpResp.Header,
		Body:        data,
		ContentType: httpResp.Header.Get("Content-Type"),
	}, nil
}

// classify maps a failure to get a response onto the error taxonomy:
// cancellation and deadlines are timeouts, an open breaker is a 503 and
// everything else is a transport error.
func (c *Client) classify(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return apperrors.Timeout()
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.Timeout()
	case httpclient.IsCircuitOpen(err):
		return apperrors.CircuitOpen(err)
	default:
		return apperrors.Transport(err)
	}
}

// buildURL joins relative endpoints to the base URL and appends non-nil
// params.
func (c *Client) buildURL(endpoint string, params map[string]any) (string, error) {
	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			if isNil(v) {
				continue
			}
			q.Add(k, fmt.Sprint(deref(v)))
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) refreshTokens(ctx context.Context) error {
	refreshToken, ok, err := c.tokens.RefreshTokenUsable(ctx, c.now())
	if err != nil {
		tokenRefreshTotal.WithLabelValues(refreshFailure).Inc()
		return err
	}
	if !ok {
		tokenRefreshTotal.WithLabelValues(refreshMissing).Inc()
		return errNoRefreshToken
	}

	var issued domain.AuthTokens
	_, err = c.Request(ctx, RefreshEndpoint, RequestOptions{
		Method:          http.MethodPost,
		Body:            map[string]string{"refreshToken": refreshToken},
		SkipAuthRefresh: true,
	}, &issued)
	if err != nil {
		tokenRefreshTotal.WithLabelValues(refreshFailure).Inc()
		return fmt.Errorf("refresh tokens: %w", err)
	}
	if issued.AccessToken == "" {
		tokenRefreshTotal.WithLabelValues(refreshFailure).Inc()
		return errors.New("refresh tokens: response carried no access token")
	}

	// Servers that do not rotate refresh tokens omit them.
	if issued.RefreshToken == "" {
		prev, err := c.tokens.Tokens(ctx)
		if err != nil {
			tokenRefreshTotal.WithLabelValues(refreshFailure).Inc()
			return err
		}
		issued.RefreshToken = prev.RefreshToken
		issued.RefreshTokenExpiresAt = prev.RefreshTokenExpiresAt
	}

	if err := c.tokens.Save(ctx, issued); err != nil {
		tokenRefreshTotal.WithLabelValues(refreshFailure).Inc()
		return err
	}
	tokenRefreshTotal.WithLabelValues(refreshSuccess).Inc()
	c.logger.InfoContext(ctx, "access token refreshed")
	return nil
}

// unauthorized is the terminal path: tokens are cleared, the user is sent
// to login and the caller gets a session expired error.
func (c *Client) unauthorized(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear tokens", slog.String("error", err.Error()))
	}

	c.mu.RLock()
	nav := c.navigator
	c.mu.RUnlock()
	nav.RedirectToLogin(ctx)

	c.logger.WarnContext(ctx, "session expired, redirecting to login")
	return apperrors.SessionExpired()
}

// resourceOf is the metrics label for an endpoint: its first path segment.
func resourceOf(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return "external"
	}
	seg, _, _ := strings.Cut(strings.TrimLeft(endpoint, "/"), "/")
	seg, _, _ = strings.Cut(seg, "?")
	if seg == "" {
		return "root"
	}
	return seg
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch p := v.(type) {
	case *string:
		return p == nil
	case *int:
		return p == nil
	case *bool:
		return p == nil
	case *float64:
		return p == nil
	}
	return false
}

func deref(v any) any {
	switch p := v.(type) {
	case *string:
		return *p
	case *int:
		return *p
	case *bool:
		return *p
	case *float64:
		return *p
	}
	return v
}
