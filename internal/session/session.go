// Package session bootstraps the signed-in user and coordinates login and
// logout with the cart.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// AuthAPI is the subset of *api.AuthAPI the controller calls.
type AuthAPI interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	Signup(ctx context.Context, req api.SignupRequest) (*api.AuthResponse, error)
	Logout(ctx context.Context) error
	Reload(ctx context.Context) (*domain.User, error)
	RequestPasswordReset(ctx context.Context, req api.RequestPasswordResetRequest) error
	ResetPassword(ctx context.Context, req api.ResetPasswordRequest) error
}

// OAuthAPI is the subset of *api.OAuthAPI the controller calls.
type OAuthAPI interface {
	Redirect(ctx context.Context, provider string) (*api.OAuthRedirectResponse, error)
	Callback(ctx context.Context, provider string, req api.OAuthCallbackRequest) (*api.AuthResponse, error)
}

// UserAPI is the subset of *api.UserAPI the controller calls.
type UserAPI interface {
	UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*domain.User, error)
}

// Tokens is the durable token storage.
type Tokens interface {
	AccessToken(ctx context.Context) (string, error)
	AccessTokenUsable(ctx context.Context, now time.Time) (string, bool, error)
	RefreshTokenUsable(ctx context.Context, now time.Time) (string, bool, error)
	Save(ctx context.Context, t domain.AuthTokens) error
	Clear(ctx context.Context) error
	OAuthReturnURL(ctx context.Context) (string, error)
	SetOAuthReturnURL(ctx context.Context, url string) error
	ClearOAuthReturnURL(ctx context.Context) error
}

// Cart is the part of the cart engine the session drives.
type Cart interface {
	Migrate(ctx context.Context) error
	Reset()
}

// Config wires a Controller.
type Config struct {
	Auth   AuthAPI
	OAuth  OAuthAPI
	Users  UserAPI
	Tokens Tokens
	Cart   Cart

	// OnLoginRequired runs after the pipeline gave up on the session.
	OnLoginRequired func(ctx context.Context)
	Logger          *slog.Logger
}

// Controller holds the signed-in user. It implements client.Navigator so the
// pipeline can end the session when a refresh fails.
type Controller struct {
	auth    AuthAPI
	oauth   OAuthAPI
	users   UserAPI
	tokens  Tokens
	cart    Cart
	onLogin func(ctx context.Context)
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	user        *domain.User
	initialized bool
}

var _ client.Navigator = (*Controller)(nil)

// New returns a controller that has not bootstrapped yet.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		auth:    cfg.Auth,
		oauth:   cfg.OAuth,
		users:   cfg.Users,
		tokens:  cfg.Tokens,
		cart:    cfg.Cart,
		onLogin: cfg.OnLoginRequired,
		logger:  logger.With(slog.String("component", "session")),
		now:     time.Now,
	}
}

// User returns a copy of the signed-in user, or nil.
func (c *Controller) User() *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Authenticated reports whether a user is signed in.
func (c *Controller) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil
}

// Initialized reports whether Bootstrap has finished.
func (c *Controller) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

func (c *Controller) setUser(u *domain.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
}

// Bootstrap restores the session from stored tokens. It always leaves the
// controller initialized: a missing token means no user, and a failed reload
// clears the tokens. When both stored tokens have expired the reload is
// skipped, since no refresh could rescue it.
func (c *Controller) Bootstrap(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.initialized = true
		c.mu.Unlock()
	}()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read access token", slog.String("error", err.Error()))
		return
	}
	if token == "" {
		c.setUser(nil)
		return
	}
	if c.expired(ctx) {
		c.logger.InfoContext(ctx, "stored session expired, signing out")
		if err := c.tokens.Clear(ctx); err != nil {
			c.logger.ErrorContext(ctx, "failed to clear tokens", slog.String("error", err.Error()))
		}
		c.setUser(nil)
		return
	}

	user, err := c.auth.Reload(ctx)
	if err != nil {
		c.logger.InfoContext(ctx, "stored session rejected, signing out",
			slog.String("error", err.Error()),
		)
		if clearErr := c.tokens.Clear(ctx); clearErr != nil {
			c.logger.ErrorContext(ctx, "failed to clear tokens", slog.String("error", clearErr.Error()))
		}
		c.setUser(nil)
		return
	}
	c.setUser(user)
	c.logger.DebugContext(ctx, "session restored", slog.String("user_id", user.ID))
}

// expired reports whether neither stored token is usable. Read errors leave
// the decision to the reload.
func (c *Controller) expired(ctx context.Context) bool {
	now := c.now()
	if _, ok, err := c.tokens.AccessTokenUsable(ctx, now); err != nil || ok {
		return false
	}
	_, ok, err := c.tokens.RefreshTokenUsable(ctx, now)
	return err == nil && !ok
}

// Login signs in with credentials.
func (c *Controller) Login(ctx context.Context, req api.LoginRequest) (*domain.User, error) {
	res, err := c.auth.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, res)
}

// Signup registers a customer and signs them in.
func (c *Controller) Signup(ctx context.Context, req api.SignupRequest) (*domain.User, error) {
	res, err := c.auth.Signup(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, res)
}

// BeginOAuth remembers where to return after sign in and returns the
// provider's consent URL.
func (c *Controller) BeginOAuth(ctx context.Context, provider, returnURL string) (string, error) {
	res, err := c.oauth.Redirect(ctx, provider)
	if err != nil {
		return "", err
	}
	if returnURL != "" {
		if err := c.tokens.SetOAuthReturnURL(ctx, returnURL); err != nil {
			return "", err
		}
	}
	return res.RedirectURL, nil
}

// CompleteOAuth signs in with the provider's code. It returns the URL saved
// by BeginOAuth, if any.
func (c *Controller) CompleteOAuth(ctx context.Context, provider, code, state string) (*domain.User, string, error) {
	res, err := c.oauth.Callback(ctx, provider, api.OAuthCallbackRequest{Code: code, State: state})
	if err != nil {
		return nil, "", err
	}
	user, err := c.establish(ctx, res)
	if err != nil {
		return nil, "", err
	}

	returnURL, err := c.tokens.OAuthReturnURL(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read oauth return url", slog.String("error", err.Error()))
		return user, "", nil
	}
	if returnURL != "" {
		if err := c.tokens.ClearOAuthReturnURL(ctx); err != nil {
			c.logger.WarnContext(ctx, "failed to clear oauth return url", slog.String("error", err.Error()))
		}
	}
	return user, returnURL, nil
}

// establish stores the tokens before anything else so the cart migration
// runs authenticated. Migration problems are logged; the login stands.
func (c *Controller) establish(ctx context.Context, res *api.AuthResponse) (*domain.User, error) {
	if err := c.tokens.Save(ctx, res.AuthTokens); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	user := res.User
	c.setUser(&user)
	c.logger.InfoContext(ctx, "signed in", slog.String("user_id", user.ID))

	if c.cart != nil {
		if err := c.cart.Migrate(ctx); err != nil {
			c.logger.WarnContext(ctx, "guest cart migration incomplete",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return c.User(), nil
}

// Logout ends the session. The server call is best effort; local state is
// always cleared.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.auth.Logout(ctx); err != nil {
		c.logger.WarnContext(ctx, "server logout failed", slog.String("error", err.Error()))
	}
	err := c.tokens.Clear(ctx)
	c.endSession()
	if err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// RedirectToLogin is called by the pipeline after it cleared the tokens.
func (c *Controller) RedirectToLogin(ctx context.Context) {
	c.logger.InfoContext(ctx, "session expired, sign in required")
	c.endSession()
	if c.onLogin != nil {
		c.onLogin(ctx)
	}
}

func (c *Controller) endSession() {
	c.setUser(nil)
	if c.cart != nil {
		c.cart.Reset()
	}
}

// UpdateProfile edits the signed-in user's profile.
func (c *Controller) UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*domain.User, error) {
	if !c.Authenticated() {
		return nil, apperrors.Unauthorized("sign in to edit your profile")
	}
	user, err := c.users.UpdateProfile(ctx, req)
	if err != nil {
		return nil, err
	}
	c.setUser(user)
	return c.User(), nil
}

// RequestPasswordReset mails a reset link.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) error {
	return c.auth.RequestPasswordReset(ctx, api.RequestPasswordResetRequest{Email: email})
}

// ResetPassword sets a new password with a reset token.
func (c *Controller) ResetPassword(ctx context.Context, req api.ResetPasswordRequest) error {
	if err := c.auth.ResetPassword(ctx, req); err != nil {
		if errors.Is(err, apperrors.ErrGone) {
			return fmt.Errorf("reset link expired: %w", err)
		}
		return err
	}
	return nil
}
