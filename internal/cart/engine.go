// Package cart keeps the session's cart snapshot in step with guest storage
// or the server cart, and migrates the guest cart at login.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/tracing"
)

// State is the engine's lifecycle position.
type State int

const (
	// StateUninitialized holds no lines yet; the next operation loads.
	StateUninitialized State = iota
	// StateLoading has a load in flight.
	StateLoading
	// StateReadyGuest mirrors the local guest cart.
	StateReadyGuest
	// StateReadyAuthenticated mirrors the server cart.
	StateReadyAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReadyGuest:
		return "ready(guest)"
	case StateReadyAuthenticated:
		return "ready(authenticated)"
	default:
		return "unknown"
	}
}

func readyState(m Mode) State {
	if m == ModeAuthenticated {
		return StateReadyAuthenticated
	}
	return StateReadyGuest
}

// AuthState reports whether the session is signed in.
type AuthState interface {
	Authenticated(ctx context.Context) bool
}

// AuthStateFunc adapts a function to AuthState.
type AuthStateFunc func(ctx context.Context) bool

func (f AuthStateFunc) Authenticated(ctx context.Context) bool { return f(ctx) }

// AccessTokenReader is satisfied by the token store.
type AccessTokenReader interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenAuth treats the session as signed in while an access token is stored.
func TokenAuth(tokens AccessTokenReader) AuthState {
	return AuthStateFunc(func(ctx context.Context) bool {
		token, err := tokens.AccessToken(ctx)
		return err == nil && token != ""
	})
}

// Config wires the engine.
type Config struct {
	Auth   AuthState
	Local  LocalStore
	Remote RemoteCart

	// Publisher receives cart events; nil disables them.
	Publisher Publisher
	Logger    *slog.Logger
}

// Engine owns the cart snapshot. Reads return copies; all writes go through
// the engine. It is safe for concurrent use, but concurrent mutations of the
// same line are not coalesced: the last one to finish wins.
type Engine struct {
	auth      AuthState
	local     *LocalBackend
	remote    *RemoteBackend
	store     LocalStore
	publisher Publisher
	logger    *slog.Logger

	// commitMu orders snapshot commits, including guest persistence.
	commitMu sync.Mutex
	// migrateMu keeps migrations from overlapping.
	migrateMu sync.Mutex

	mu    sync.RWMutex
	snap  domain.Snapshot
	state State
	// gen changes on every Reset. Work that started under an older value
	// is not committed.
	gen uint64
}

// ErrReset is returned by a mutation whose cart was reset before its
// result could be applied.
var ErrReset = errors.New("cart was reset while the change was in flight")

// New builds an engine in the uninitialized guest state.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		auth:      cfg.Auth,
		local:     NewLocalBackend(cfg.Local),
		remote:    NewRemoteBackend(cfg.Remote),
		store:     cfg.Local,
		publisher: cfg.Publisher,
		logger:    logger.With(slog.String("component", "cart")),
		snap:      domain.Snapshot{Items: []domain.CartLineItem{}},
	}
}

// Snapshot returns a copy of the current cart.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.Clone()
}

// Items returns a copy of the current lines.
func (e *Engine) Items() []domain.CartLineItem {
	return e.Snapshot().Items
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Initialized reports whether a load has settled since the last reset.
func (e *Engine) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.IsInitialized
}

func (e *Engine) backend(ctx context.Context) Backend {
	if e.auth != nil && e.auth.Authenticated(ctx) {
		return e.remote
	}
	return e.local
}

// Load replaces the snapshot from the current mode's storage. Failures are
// logged and absorbed: the previous lines are kept and the cart is marked
// initialized either way. A load overtaken by Reset, such as a session that
// ended during the fetch, is dropped and the cart stays uninitialized.
func (e *Engine) Load(ctx context.Context) {
	b := e.backend(ctx)

	e.mu.Lock()
	gen := e.gen
	e.state = StateLoading
	e.mu.Unlock()

	start := time.Now()
	items, err := b.Load(ctx)
	observe(opLoad, b.Mode(), err, start)

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		e.logger.InfoContext(ctx, "cart reset during load, discarding result",
			slog.String("mode", string(b.Mode())),
		)
		return
	}
	if err != nil {
		e.logger.WarnContext(ctx, "cart load failed, keeping previous cart",
			slog.String("mode", string(b.Mode())),
			slog.String("error", err.Error()),
		)
	} else {
		if items == nil {
			items = []domain.CartLineItem{}
		}
		e.snap.Items = items
	}
	e.snap.IsInitialized = true
	e.state = readyState(b.Mode())
}

func (e *Engine) generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// ensureLoaded loads once so a guest mutation never overwrites stored lines
// with an unloaded snapshot.
func (e *Engine) ensureLoaded(ctx context.Context) {
	if !e.Initialized() {
		e.Load(ctx)
	}
}

// AddItem adds quantity of item. For a guest, a line with the same id grows
// by the added quantity, clamped to stock. A signed-in cart takes the
// server's merged line as is. Unknown lines are appended.
func (e *Engine) AddItem(ctx context.Context, item domain.CartLineItem, quantity int) error {
	e.ensureLoaded(ctx)
	gen := e.generation()
	b := e.backend(ctx)

	merge := mergeLine
	if b.Mode() == ModeAuthenticated {
		merge = replaceLine
	}

	start := time.Now()
	line, err := b.Add(ctx, item, quantity)
	if err == nil {
		err = e.commit(ctx, b, gen, true, func(items []domain.CartLineItem) ([]domain.CartLineItem, bool) {
			return merge(items, line), true
		})
	}
	observe(opAdd, b.Mode(), err, start)
	if err != nil {
		return fmt.Errorf("add %s to cart: %w", item.ID, err)
	}
	e.publish(ctx, Event{Type: EventItemAdded, Mode: b.Mode(), ItemID: line.ID, Quantity: quantity})
	return nil
}

func mergeLine(items []domain.CartLineItem, line domain.CartLineItem) []domain.CartLineItem {
	if i := domain.IndexOf(items, line.ID); i >= 0 {
		total := items[i].Quantity + line.Quantity
		if total > line.StockQuantity {
			total = line.StockQuantity
		}
		items[i].Quantity = total
		return items
	}
	return append(items, line)
}

// replaceLine swaps in line for the one with the same id, keeping the
// snapshot's selection flag.
func replaceLine(items []domain.CartLineItem, line domain.CartLineItem) []domain.CartLineItem {
	if i := domain.IndexOf(items, line.ID); i >= 0 {
		line.IsSelected = items[i].IsSelected
		items[i] = line
		return items
	}
	return append(items, line)
}

// UpdateItemQuantity sets a line's quantity. Guest quantities are clamped to
// stock and <= 0 removes the line; signed-in carts mirror the server's answer.
func (e *Engine) UpdateItemQuantity(ctx context.Context, id string, quantity int) error {
	e.ensureLoaded(ctx)
	current, ok := e.line(id)
	if !ok {
		return apperrors.NotFound("cart item", id)
	}
	gen := e.generation()
	b := e.backend(ctx)

	start := time.Now()
	next, err := b.Update(ctx, current, quantity)
	if err == nil {
		err = e.commit(ctx, b, gen, true, func(items []domain.CartLineItem) ([]domain.CartLineItem, bool) {
			i := domain.IndexOf(items, id)
			if i < 0 {
				return items, false
			}
			if next <= 0 {
				return removeAt(items, i), true
			}
			items[i].Quantity = next
			return items, true
		})
	}
	observe(opUpdate, b.Mode(), err, start)
	if err != nil {
		return fmt.Errorf("update cart item %s: %w", id, err)
	}
	e.publish(ctx, Event{Type: EventItemUpdated, Mode: b.Mode(), ItemID: id, Quantity: next})
	return nil
}

// RemoveItem deletes a line.
func (e *Engine) RemoveItem(ctx context.Context, id string) error {
	e.ensureLoaded(ctx)
	if _, ok := e.line(id); !ok {
		return apperrors.NotFound("cart item", id)
	}
	gen := e.generation()
	b := e.backend(ctx)

	start := time.Now()
	err := b.Remove(ctx, id)
	if err == nil {
		err = e.commit(ctx, b, gen, true, func(items []domain.CartLineItem) ([]domain.CartLineItem, bool) {
			i := domain.IndexOf(items, id)
			if i < 0 {
				return items, false
			}
			return removeAt(items, i), true
		})
	}
	observe(opRemove, b.Mode(), err, start)
	if err != nil {
		return fmt.Errorf("remove cart item %s: %w", id, err)
	}
	e.publish(ctx, Event{Type: EventItemRemoved, Mode: b.Mode(), ItemID: id})
	return nil
}

// ClearCart empties the cart.
func (e *Engine) ClearCart(ctx context.Context) error {
	gen := e.generation()
	b := e.backend(ctx)

	start := time.Now()
	err := b.Clear(ctx)
	if err == nil {
		err = e.commit(ctx, b, gen, false, func([]domain.CartLineItem) ([]domain.CartLineItem, bool) {
			return []domain.CartLineItem{}, true
		})
	}
	observe(opClear, b.Mode(), err, start)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	e.publish(ctx, Event{Type: EventCleared, Mode: b.Mode()})
	return nil
}

// SetItemSelection toggles whether a line counts toward checkout. It only
// touches the in-memory snapshot.
func (e *Engine) SetItemSelection(id string, selected bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.snap.IndexOf(id)
	if i < 0 {
		return apperrors.NotFound("cart item", id)
	}
	e.snap.Items[i].IsSelected = selected
	return nil
}

// SetAllSelected selects or deselects every line.
func (e *Engine) SetAllSelected(selected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.snap.Items {
		e.snap.Items[i].IsSelected = selected
	}
}

// Reset returns to the empty uninitialized guest state. The next Load
// reads whichever mode the session is in by then.
func (e *Engine) Reset() {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap = domain.Snapshot{Items: []domain.CartLineItem{}}
	e.state = StateUninitialized
	e.gen++
}

// Migrate pushes the stored guest cart into the server cart, one add per
// line, then reloads from the server. Lines the server rejected stay in
// guest storage and their errors are joined into the result. With no guest
// lines it only reloads.
func (e *Engine) Migrate(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, "cart.migrate")
	defer func() { tracing.End(span, err) }()

	e.migrateMu.Lock()
	defer e.migrateMu.Unlock()

	if e.auth == nil || !e.auth.Authenticated(ctx) {
		return apperrors.Unauthorized("cart migration requires a signed-in session")
	}

	start := time.Now()
	guest, err := e.store.Load(ctx)
	if err != nil {
		observe(opMigrate, ModeAuthenticated, err, start)
		return fmt.Errorf("read guest cart: %w", err)
	}

	var (
		failed   []domain.CartLineItem
		errs     []error
		migrated int
	)
	for _, item := range guest {
		if item.Quantity < 1 {
			continue
		}
		if _, err := e.remote.Add(ctx, item, item.Quantity); err != nil {
			failed = append(failed, item)
			errs = append(errs, fmt.Errorf("migrate %s: %w", item.ID, err))
			continue
		}
		migrated++
	}

	if len(guest) > 0 {
		if len(failed) > 0 {
			err = e.store.Save(ctx, failed)
		} else {
			err = e.store.Clear(ctx)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("update guest cart: %w", err))
		}
	}

	e.Load(ctx)

	err = errors.Join(errs...)
	observe(opMigrate, ModeAuthenticated, err, start)
	if len(guest) > 0 {
		e.logger.InfoContext(ctx, "guest cart migrated",
			slog.Int("items", len(guest)),
			slog.Int("migrated", migrated),
			slog.Int("failed", len(failed)),
		)
	}
	if migrated > 0 {
		e.publish(ctx, Event{Type: EventMigrated, Mode: ModeAuthenticated, Quantity: migrated})
	}
	return err
}

// commit applies mutate to a copy of the current lines and swaps it in.
// Guest carts are persisted first, so a failed write changes nothing. A
// commit for an older generation fails with ErrReset.
func (e *Engine) commit(ctx context.Context, b Backend, gen uint64, persist bool, mutate func([]domain.CartLineItem) ([]domain.CartLineItem, bool)) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.RLock()
	stale := e.gen != gen
	items := domain.CloneItems(e.snap.Items)
	e.mu.RUnlock()
	if stale {
		return ErrReset
	}

	next, changed := mutate(items)
	if !changed {
		return nil
	}
	if persist {
		if err := b.Persist(ctx, next); err != nil {
			return fmt.Errorf("persist cart: %w", err)
		}
	}

	e.mu.Lock()
	e.snap.Items = next
	e.mu.Unlock()
	return nil
}

func (e *Engine) line(id string) (domain.CartLineItem, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := e.snap.IndexOf(id)
	if i < 0 {
		return domain.CartLineItem{}, false
	}
	return e.snap.Items[i], true
}

func removeAt(items []domain.CartLineItem, i int) []domain.CartLineItem {
	return append(items[:i], items[i+1:]...)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "failed to publish cart event",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}
