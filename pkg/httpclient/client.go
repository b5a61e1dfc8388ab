package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Doer executes a prepared request. Implemented by *Client and *CircuitBreakerClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

var (
	_ Doer = (*Client)(nil)
	_ Doer = (*CircuitBreakerClient)(nil)
)

var retriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_http_retries_total",
		Help: "Requests sent again after a transient failure",
	},
	[]string{"method", "reason"},
)

const (
	retryReasonNetwork = "network"
	retryReasonStatus  = "status"
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

// DefaultConfig returns the transport defaults of the storefront client.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 16,
	}
}

// Client is an http.Client that retries idempotent requests on network
// errors and 5xx answers. A POST or PATCH is sent exactly once.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a client with its own pooled transport.
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		config: cfg,
	}
}

// Do sends req, retrying as configured. The last 5xx response is returned
// as is once retries run out.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	retries := c.config.MaxRetries
	if !IsIdempotent(req.Method) {
		retries = 0
	}

	var wait time.Duration
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if err := rewindBody(req); err != nil {
				return nil, err
			}
		}

		resp, err := c.httpClient.Do(req)
		last := attempt >= retries
		if err != nil {
			if !last && isRetryableError(err) {
				retriesTotal.WithLabelValues(req.Method, retryReasonNetwork).Inc()
				wait = c.backoff(attempt + 1)
				continue
			}
			return nil, &AttemptsError{Attempts: attempt + 1, Err: err}
		}

		if !last && retryableStatus(resp.StatusCode) {
			retriesTotal.WithLabelValues(req.Method, retryReasonStatus).Inc()
			wait = c.backoff(attempt + 1)
			if after, ok := retryAfter(resp, c.config.RetryWaitMax); ok {
				wait = after
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
}

// backoff is the jittered exponential wait before the given retry (1-based),
// capped at RetryWaitMax.
func (c *Client) backoff(retry int) time.Duration {
	wait := c.config.RetryWaitMin
	for i := 1; i < retry && wait < c.config.RetryWaitMax; i++ {
		wait *= 2
	}
	return addJitter(min(wait, c.config.RetryWaitMax))
}

// IsIdempotent reports whether a request with this method may be repeated
// without changing the outcome on the server.
func IsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// retryableStatus is every 5xx except 501, which will not change on retry.
func retryableStatus(code int) bool {
	return code >= 500 && code != http.StatusNotImplemented
}

// retryAfter reads a delay-seconds Retry-After header, capped at max.
func retryAfter(resp *http.Response, max time.Duration) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		d = max
	}
	return d, true
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

// addJitter spreads d by up to 25% in either direction.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := int64(d) / 2
	if spread == 0 {
		return d
	}
	return time.Duration(int64(d) - spread/2 + rand.Int64N(spread+1))
}

// isRetryableError reports network errors; cancellation and deadlines are final.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// AttemptsError carries the number of sends behind a network failure. Its
// message is the underlying error's so callers can surface it unchanged.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string { return e.Err.Error() }

func (e *AttemptsError) Unwrap() error { return e.Err }
