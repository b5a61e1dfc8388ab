package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/internal/tokenstore"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*api.AuthResponse)
	return res, args.Error(1)
}

func (m *mockAuth) Signup(ctx context.Context, req api.SignupRequest) (*api.AuthResponse, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*api.AuthResponse)
	return res, args.Error(1)
}

func (m *mockAuth) Logout(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockAuth) Reload(ctx context.Context) (*domain.User, error) {
	args := m.Called()
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockAuth) RequestPasswordReset(ctx context.Context, req api.RequestPasswordResetRequest) error {
	return m.Called(req).Error(0)
}

func (m *mockAuth) ResetPassword(ctx context.Context, req api.ResetPasswordRequest) error {
	return m.Called(req).Error(0)
}

type mockOAuth struct{ mock.Mock }

func (m *mockOAuth) Redirect(ctx context.Context, provider string) (*api.OAuthRedirectResponse, error) {
	args := m.Called(provider)
	res, _ := args.Get(0).(*api.OAuthRedirectResponse)
	return res, args.Error(1)
}

func (m *mockOAuth) Callback(ctx context.Context, provider string, req api.OAuthCallbackRequest) (*api.AuthResponse, error) {
	args := m.Called(provider, req)
	res, _ := args.Get(0).(*api.AuthResponse)
	return res, args.Error(1)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*domain.User, error) {
	args := m.Called(req)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

// fakeCart records calls and checks that tokens are stored before migration.
type fakeCart struct {
	tokens     *tokenstore.Store
	migrations atomic.Int32
	resets     atomic.Int32
	sawToken   atomic.Bool
	migrateErr error
}

func (c *fakeCart) Migrate(ctx context.Context) error {
	c.migrations.Add(1)
	token, _ := c.tokens.AccessToken(ctx)
	c.sawToken.Store(token != "")
	return c.migrateErr
}

func (c *fakeCart) Reset() { c.resets.Add(1) }

type fixture struct {
	ctrl   *Controller
	auth   *mockAuth
	oauth  *mockOAuth
	users  *mockUsers
	tokens *tokenstore.Store
	cart   *fakeCart
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := tokenstore.New(memory.New())
	f := &fixture{
		auth:   new(mockAuth),
		oauth:  new(mockOAuth),
		users:  new(mockUsers),
		tokens: tokens,
		cart:   &fakeCart{tokens: tokens},
	}
	f.ctrl = New(Config{
		Auth:   f.auth,
		OAuth:  f.oauth,
		Users:  f.users,
		Tokens: f.tokens,
		Cart:   f.cart,
		Logger: logger.Discard(),
	})
	return f
}

func authResponse(userID string) *api.AuthResponse {
	return &api.AuthResponse{
		User: domain.User{ID: userID, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		AuthTokens: domain.AuthTokens{
			AccessToken:           "access-" + userID,
			AccessTokenExpiresAt:  time.Now().Add(time.Hour),
			RefreshToken:          "refresh-" + userID,
			RefreshTokenExpiresAt: time.Now().Add(24 * time.Hour),
		},
	}
}

// --- Bootstrap ---

func TestBootstrap_NoToken(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Bootstrap(context.Background())

	assert.True(t, f.ctrl.Initialized())
	assert.Nil(t, f.ctrl.User())
	f.auth.AssertNotCalled(t, "Reload")
}

func TestBootstrap_RestoresUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, authResponse("u1").AuthTokens))
	f.auth.On("Reload").Return(&domain.User{ID: "u1"}, nil)

	f.ctrl.Bootstrap(ctx)

	assert.True(t, f.ctrl.Initialized())
	require.NotNil(t, f.ctrl.User())
	assert.Equal(t, "u1", f.ctrl.User().ID)
	assert.True(t, f.ctrl.Authenticated())
}

func TestBootstrap_FailedReloadClearsTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, authResponse("u1").AuthTokens))
	f.auth.On("Reload").Return(nil, apperrors.Transport(errors.New("offline")))

	f.ctrl.Bootstrap(ctx)

	assert.True(t, f.ctrl.Initialized())
	assert.Nil(t, f.ctrl.User())
	tokens, err := f.tokens.Tokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
}

func TestBootstrap_ExpiredTokensSkipReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, f.tokens.Save(ctx, domain.AuthTokens{
		AccessToken:           "access-u1",
		AccessTokenExpiresAt:  past,
		RefreshToken:          "refresh-u1",
		RefreshTokenExpiresAt: past,
	}))

	f.ctrl.Bootstrap(ctx)

	assert.True(t, f.ctrl.Initialized())
	assert.Nil(t, f.ctrl.User())
	f.auth.AssertNotCalled(t, "Reload")
	tokens, err := f.tokens.Tokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
}

func TestBootstrap_ExpiredAccessTokenStillReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := authResponse("u1").AuthTokens
	tokens.AccessTokenExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, f.tokens.Save(ctx, tokens))
	f.auth.On("Reload").Return(&domain.User{ID: "u1"}, nil)

	f.ctrl.Bootstrap(ctx)

	require.NotNil(t, f.ctrl.User())
	assert.Equal(t, "u1", f.ctrl.User().ID)
	f.auth.AssertCalled(t, "Reload")
}

// --- Login ---

func TestLogin_StoresTokensThenMigrates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := api.LoginRequest{Email: "ada@example.com", Password: "pw"}
	f.auth.On("Login", req).Return(authResponse("u1"), nil)

	user, err := f.ctrl.Login(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	stored, err := f.tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-u1", stored)
	assert.Equal(t, int32(1), f.cart.migrations.Load())
	assert.True(t, f.cart.sawToken.Load())
}

func TestLogin_MigrationFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t)
	f.cart.migrateErr = errors.New("server cart unavailable")
	req := api.LoginRequest{Email: "ada@example.com", Password: "pw"}
	f.auth.On("Login", req).Return(authResponse("u1"), nil)

	user, err := f.ctrl.Login(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestLogin_RejectedCredentials(t *testing.T) {
	f := newFixture(t)
	req := api.LoginRequest{Email: "ada@example.com", Password: "wrong"}
	f.auth.On("Login", req).Return(nil, apperrors.Unauthorized("invalid credentials"))

	_, err := f.ctrl.Login(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Nil(t, f.ctrl.User())
	assert.Zero(t, f.cart.migrations.Load())
}

func TestSignup_EstablishesSession(t *testing.T) {
	f := newFixture(t)
	req := api.SignupRequest{Email: "ada@example.com", Password: "Secret1!x", FirstName: "Ada", LastName: "L"}
	f.auth.On("Signup", req).Return(authResponse("u2"), nil)

	user, err := f.ctrl.Signup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, int32(1), f.cart.migrations.Load())
}

// --- Logout ---

func TestLogout_ClearsEverythingEvenWhenServerFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := api.LoginRequest{Email: "ada@example.com", Password: "pw"}
	f.auth.On("Login", req).Return(authResponse("u1"), nil)
	f.auth.On("Logout").Return(apperrors.Transport(errors.New("offline")))
	_, err := f.ctrl.Login(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Logout(ctx))

	assert.Nil(t, f.ctrl.User())
	assert.Equal(t, int32(1), f.cart.resets.Load())
	tokens, err := f.tokens.Tokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
}

func TestRedirectToLogin_EndsSession(t *testing.T) {
	f := newFixture(t)
	var called atomic.Bool
	f.ctrl.onLogin = func(context.Context) { called.Store(true) }
	f.ctrl.setUser(&domain.User{ID: "u1"})

	f.ctrl.RedirectToLogin(context.Background())

	assert.Nil(t, f.ctrl.User())
	assert.Equal(t, int32(1), f.cart.resets.Load())
	assert.True(t, called.Load())
}

// --- OAuth ---

func TestOAuth_RoundTripKeepsReturnURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oauth.On("Redirect", "github").Return(&api.OAuthRedirectResponse{RedirectURL: "https://github.example/authorize"}, nil)
	f.oauth.On("Callback", "github", api.OAuthCallbackRequest{Code: "c", State: "s"}).Return(authResponse("u3"), nil)

	url, err := f.ctrl.BeginOAuth(ctx, "github", "/checkout")
	require.NoError(t, err)
	assert.Equal(t, "https://github.example/authorize", url)

	user, returnURL, err := f.ctrl.CompleteOAuth(ctx, "github", "c", "s")
	require.NoError(t, err)
	assert.Equal(t, "u3", user.ID)
	assert.Equal(t, "/checkout", returnURL)

	left, err := f.tokens.OAuthReturnURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

// --- Profile and password ---

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := api.UpdateProfileRequest{FirstName: "Grace", LastName: "Hopper"}

	_, err := f.ctrl.UpdateProfile(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	f.ctrl.setUser(&domain.User{ID: "u1", FirstName: "Ada"})
	f.users.On("UpdateProfile", req).Return(&domain.User{ID: "u1", FirstName: "Grace", LastName: "Hopper"}, nil)

	user, err := f.ctrl.UpdateProfile(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", user.FullName())
	assert.Equal(t, "Grace Hopper", f.ctrl.User().FullName())
}

func TestResetPassword_ExpiredLink(t *testing.T) {
	f := newFixture(t)
	req := api.ResetPasswordRequest{Token: "t", NewPassword: "Secret1!x", ConfirmPassword: "Secret1!x"}
	f.auth.On("ResetPassword", req).Return(apperrors.Gone("token expired"))

	err := f.ctrl.ResetPassword(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrGone)
	assert.Contains(t, err.Error(), "reset link expired")
}

func TestUserIsACopy(t *testing.T) {
	f := newFixture(t)
	f.ctrl.setUser(&domain.User{ID: "u1"})
	u := f.ctrl.User()
	u.ID = "changed"
	assert.Equal(t, "u1", f.ctrl.User().ID)
}
