// Package tokenstore persists the session's token pair and the small pieces
// of auth state that ride along with it (XSRF token, OAuth return URL).
package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
)

// tokenKeys is every key Clear removes. Both tokens and their expiries go
// together so no partial pair is ever left behind.
var tokenKeys = []string{
	storage.KeyAccessToken,
	storage.KeyAccessTokenExpiresAt,
	storage.KeyRefreshToken,
	storage.KeyRefreshTokenExpiresAt,
	storage.KeyXSRFToken,
}

// Store reads and writes tokens through a storage.Store.
type Store struct {
	kv storage.Store
}

// New returns a token store over kv.
func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Save writes both tokens and their expiries in one atomic Set.
func (s *Store) Save(ctx context.Context, t domain.AuthTokens) error {
	values := map[string]string{
		storage.KeyAccessToken:           t.AccessToken,
		storage.KeyAccessTokenExpiresAt:  formatTime(t.AccessTokenExpiresAt),
		storage.KeyRefreshToken:          t.RefreshToken,
		storage.KeyRefreshTokenExpiresAt: formatTime(t.RefreshTokenExpiresAt),
	}
	if err := s.kv.Set(ctx, values); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// Clear removes both tokens, their expiries and the XSRF token atomically.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, tokenKeys...); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// AccessToken returns the stored access token, or "" when absent.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeyRefreshToken)
}

// Tokens returns the stored pair. Missing values are zero.
func (s *Store) Tokens(ctx context.Context) (domain.AuthTokens, error) {
	var t domain.AuthTokens
	var err error

	if t.AccessToken, err = s.AccessToken(ctx); err != nil {
		return t, err
	}
	if t.RefreshToken, err = s.RefreshToken(ctx); err != nil {
		return t, err
	}
	if t.AccessTokenExpiresAt, err = s.getTime(ctx, storage.KeyAccessTokenExpiresAt); err != nil {
		return t, err
	}
	if t.RefreshTokenExpiresAt, err = s.getTime(ctx, storage.KeyRefreshTokenExpiresAt); err != nil {
		return t, err
	}
	return t, nil
}

// AccessTokenUsable returns the access token when it is present and not
// expired at now.
func (s *Store) AccessTokenUsable(ctx context.Context, now time.Time) (string, bool, error) {
	t, err := s.Tokens(ctx)
	if err != nil {
		return "", false, err
	}
	if t.AccessToken == "" || Expired(t.AccessToken, t.AccessTokenExpiresAt, now) {
		return "", false, nil
	}
	return t.AccessToken, true, nil
}

// RefreshTokenUsable returns the refresh token when it is present and not
// expired at now.
func (s *Store) RefreshTokenUsable(ctx context.Context, now time.Time) (string, bool, error) {
	t, err := s.Tokens(ctx)
	if err != nil {
		return "", false, err
	}
	if t.RefreshToken == "" || Expired(t.RefreshToken, t.RefreshTokenExpiresAt, now) {
		return "", false, nil
	}
	return t.RefreshToken, true, nil
}

// XSRFToken returns the passthrough XSRF token, or "".
func (s *Store) XSRFToken(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeyXSRFToken)
}

// SetXSRFToken stores the XSRF token the server handed out.
func (s *Store) SetXSRFToken(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, map[string]string{storage.KeyXSRFToken: token}); err != nil {
		return fmt.Errorf("save xsrf token: %w", err)
	}
	return nil
}

// OAuthReturnURL returns where to go after an OAuth round trip, or "".
func (s *Store) OAuthReturnURL(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeyOAuthReturnURL)
}

// SetOAuthReturnURL remembers where to go after an OAuth round trip.
func (s *Store) SetOAuthReturnURL(ctx context.Context, url string) error {
	if err := s.kv.Set(ctx, map[string]string{storage.KeyOAuthReturnURL: url}); err != nil {
		return fmt.Errorf("save oauth return url: %w", err)
	}
	return nil
}

// ClearOAuthReturnURL forgets the OAuth return URL.
func (s *Store) ClearOAuthReturnURL(ctx context.Context) error {
	return s.kv.Delete(ctx, storage.KeyOAuthReturnURL)
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, _, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) getTime(ctx context.Context, key string) (time.Time, error) {
	v, err := s.get(ctx, key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		// An unreadable expiry is treated as unknown.
		return time.Time{}, nil
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Expired reports whether token is expired at now. A known server expiry
// wins; otherwise the JWT exp claim decides. A token that cannot be decoded
// counts as expired; a decodable one without exp never expires.
func Expired(token string, expiresAt, now time.Time) bool {
	if !expiresAt.IsZero() {
		return !now.Before(expiresAt)
	}
	claims, err := ClaimsFromToken(token)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// Claims is what the client can learn about the user from an access token.
type Claims struct {
	UID   string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the subject, falling back to an id claim.
func (c *Claims) UserID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UID
}

// ClaimsFromToken decodes the token payload without verifying the
// signature. The client holds no key; the server verifies on every call.
func ClaimsFromToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}
