package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// errNoRefreshToken fails a refresh before any network call.
var errNoRefreshToken = errors.New("no usable refresh token")

// RefreshState is the state of the token refresh protocol.
type RefreshState int

const (
	// StateIdle means no refresh is in flight.
	StateIdle RefreshState = iota
	// StateRefreshing means a refresh is in flight and 401s are queued.
	StateRefreshing
)

func (s RefreshState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

type replayFunc func(ctx context.Context) (*Response, error)

type outcome struct {
	resp *Response
	err  error
}

// waiter is a request that hit a 401 while a refresh was in flight.
type waiter struct {
	ctx    context.Context
	replay replayFunc
	done   chan outcome
}

// refresher runs the single-flight refresh protocol. At most one refresh is
// in flight; 401s that arrive meanwhile wait in a FIFO queue and are
// replayed in order once it settles.
type refresher struct {
	mu    sync.Mutex
	state RefreshState
	queue []*waiter

	// currentToken returns the access token requests are sent with now.
	currentToken func(ctx context.Context) (string, error)
	// refresh obtains and persists a new token pair.
	refresh func(ctx context.Context) error
	// unauthorized clears the session and returns the terminal error.
	unauthorized func(ctx context.Context) error

	timeout time.Duration
	logger  *slog.Logger
}

func (r *refresher) State() RefreshState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *refresher) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// recover handles a 401 for a request that was sent with sentToken and
// returns the result of replaying it.
func (r *refresher) recover(ctx context.Context, sentToken string, replay replayFunc) (*Response, error) {
	r.mu.Lock()
	if r.state == StateRefreshing {
		w := &waiter{ctx: ctx, replay: replay, done: make(chan outcome, 1)}
		r.queue = append(r.queue, w)
		r.mu.Unlock()

		select {
		case out := <-w.done:
			return out.resp, out.err
		case <-ctx.Done():
			return nil, apperrors.Timeout()
		}
	}

	// The token was rotated after this request left: the replay carries the
	// new one, no refresh needed. Read under the lock so no refresh can
	// start or finish in between.
	if current, err := r.currentToken(ctx); err == nil && current != "" && current != sentToken {
		r.mu.Unlock()
		tokenRefreshTotal.WithLabelValues(refreshRotated).Inc()
		return r.replayOnce(ctx, replay)
	}

	r.state = StateRefreshing
	r.mu.Unlock()

	// The refresh outlives the caller that triggered it: queued requests
	// depend on it too.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	err := r.refresh(refreshCtx)
	cancel()
	if err != nil {
		r.logger.WarnContext(ctx, "token refresh failed", slog.String("error", err.Error()))
		terminal := r.unauthorized(ctx)
		r.settle(nil, terminal)
		return nil, terminal
	}

	resp, err := r.replayOnce(ctx, replay)
	if errors.Is(err, apperrors.ErrSessionExpired) {
		r.settle(nil, err)
		return nil, err
	}
	r.drain()
	return resp, err
}

// replayOnce re-sends a request. A second 401 is terminal.
func (r *refresher) replayOnce(ctx context.Context, replay replayFunc) (*Response, error) {
	resp, err := replay(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusUnauthorized {
		return nil, r.unauthorized(ctx)
	}
	return resp, nil
}

// drain replays the queue in arrival order until it stays empty, then
// returns to idle.
func (r *refresher) drain() {
	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		if len(batch) == 0 {
			r.state = StateIdle
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		for i, w := range batch {
			if w.ctx.Err() != nil {
				w.done <- outcome{err: apperrors.Timeout()}
				continue
			}
			resp, err := r.replayOnce(w.ctx, w.replay)
			w.done <- outcome{resp: resp, err: err}
			if errors.Is(err, apperrors.ErrSessionExpired) {
				r.settle(batch[i+1:], err)
				return
			}
		}
	}
}

// settle rejects rest and everything still queued with err and returns to
// idle.
func (r *refresher) settle(rest []*waiter, err error) {
	r.mu.Lock()
	all := make([]*waiter, 0, len(rest)+len(r.queue))
	all = append(all, rest...)
	all = append(all, r.queue...)
	r.queue = nil
	r.state = StateIdle
	r.mu.Unlock()

	for _, w := range all {
		w.done <- outcome{err: err}
	}
}
