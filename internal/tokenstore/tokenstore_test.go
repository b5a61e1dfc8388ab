package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/memory"
)

func signToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	return signToken(t, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(exp)})
}

func TestSave_ThenTokens(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	exp := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, domain.AuthTokens{
		AccessToken:           "a1",
		AccessTokenExpiresAt:  exp,
		RefreshToken:          "r1",
		RefreshTokenExpiresAt: exp.Add(24 * time.Hour),
	}))

	got, err := s.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
	assert.True(t, exp.Equal(got.AccessTokenExpiresAt))
	assert.True(t, exp.Add(24*time.Hour).Equal(got.RefreshTokenExpiresAt))
}

func TestClear_RemovesEverything(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	s := New(kv)

	require.NoError(t, s.Save(ctx, domain.AuthTokens{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, s.SetXSRFToken(ctx, "x"))
	require.NoError(t, kv.Set(ctx, map[string]string{storage.KeyCartItems: "[]"}))

	require.NoError(t, s.Clear(ctx))

	got, err := s.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthTokens{}, got)
	xsrf, err := s.XSRFToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, xsrf)

	_, ok, _ := kv.Get(ctx, storage.KeyCartItems)
	assert.True(t, ok, "guest cart is not a token")
}

func TestRefreshTokenUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		tokens domain.AuthTokens
		want   bool
	}{
		{"absent", domain.AuthTokens{}, false},
		{"stored expiry in future", domain.AuthTokens{RefreshToken: "opaque", RefreshTokenExpiresAt: now.Add(time.Hour)}, true},
		{"stored expiry passed", domain.AuthTokens{RefreshToken: tokenExpiringAt(t, now.Add(time.Hour)), RefreshTokenExpiresAt: now.Add(-time.Second)}, false},
		{"jwt exp in future", domain.AuthTokens{RefreshToken: tokenExpiringAt(t, now.Add(time.Hour))}, true},
		{"jwt exp passed", domain.AuthTokens{RefreshToken: tokenExpiringAt(t, now.Add(-time.Hour))}, false},
		{"malformed without expiry", domain.AuthTokens{RefreshToken: "not-a-jwt"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(memory.New())
			require.NoError(t, s.Save(context.Background(), tt.tokens))

			tok, ok, err := s.RefreshTokenUsable(context.Background(), now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.tokens.RefreshToken, tok)
			} else {
				assert.Empty(t, tok)
			}
		})
	}
}

func TestAccessTokenUsable(t *testing.T) {
	now := time.Now()
	s := New(memory.New())
	ctx := context.Background()

	_, ok, err := s.AccessTokenUsable(ctx, now)
	require.NoError(t, err)
	assert.False(t, ok)

	live := tokenExpiringAt(t, now.Add(time.Minute))
	require.NoError(t, s.Save(ctx, domain.AuthTokens{AccessToken: live}))
	tok, ok, err := s.AccessTokenUsable(ctx, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, live, tok)

	_, ok, err = s.AccessTokenUsable(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpired_JWTWithoutExp(t *testing.T) {
	tok := signToken(t, jwt.RegisteredClaims{Subject: "u1"})
	assert.False(t, Expired(tok, time.Time{}, time.Now()))
}

func TestExpired_BoundaryIsExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, Expired("x", now, now))
}

func TestClaimsFromToken(t *testing.T) {
	tok := signToken(t, &Claims{
		Email: "ada@example.com",
		Name:  "Ada",
		Role:  "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
		},
	})

	c, err := ClaimsFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID())
	assert.Equal(t, "ada@example.com", c.Email)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, "customer", c.Role)
}

func TestClaimsFromToken_IDFallback(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"id": "legacy-7"})
	c, err := ClaimsFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "legacy-7", c.UserID())
}

func TestClaimsFromToken_Malformed(t *testing.T) {
	_, err := ClaimsFromToken("a.b")
	require.Error(t, err)
	_, err = ClaimsFromToken("")
	require.Error(t, err)
}

func TestOAuthReturnURL(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())

	require.NoError(t, s.SetOAuthReturnURL(ctx, "/cart"))
	u, err := s.OAuthReturnURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/cart", u)

	require.NoError(t, s.ClearOAuthReturnURL(ctx))
	u, err = s.OAuthReturnURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, u)
}

type failingKV struct{ storage.Store }

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func (failingKV) Set(context.Context, map[string]string) error { return errors.New("disk gone") }

func TestStorageErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	s := New(failingKV{Store: memory.New()})

	_, err := s.AccessToken(ctx)
	assert.ErrorContains(t, err, "disk gone")
	_, _, err = s.RefreshTokenUsable(ctx, time.Now())
	assert.ErrorContains(t, err, "disk gone")
	assert.ErrorContains(t, s.Save(ctx, domain.AuthTokens{}), "save tokens")
}
