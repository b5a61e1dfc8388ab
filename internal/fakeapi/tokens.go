package fakeapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
)

const (
	issuerName  = "storefront-fakeapi"
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// tokenClaims carries what the client decodes (id, email, name) plus the
// revocation bookkeeping the server checks: the user's session generation
// and, for access tokens, the server-wide access epoch.
type tokenClaims struct {
	UID     string `json:"id"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"typ"`
	Session int    `json:"sid"`
	Epoch   int    `json:"epoch"`
	jwt.RegisteredClaims
}

// issuer signs and verifies HS256 token pairs.
type issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func (i *issuer) issue(u domain.User, session, epoch int) (domain.AuthTokens, error) {
	now := i.now().UTC()
	access, accessExp, err := i.sign(kindAccess, u, session, epoch, now, i.accessTTL)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	refresh, refreshExp, err := i.sign(kindRefresh, u, session, 0, now, i.refreshTTL)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	return domain.AuthTokens{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

func (i *issuer) sign(kind string, u domain.User, session, epoch int, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := jwt.NewNumericDate(now.Add(ttl))
	claims := &tokenClaims{
		UID:     u.ID,
		Email:   u.Email,
		Name:    u.FullName(),
		Kind:    kind,
		Session: session,
		Epoch:   epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, expiresAt.Time, nil
}

// parse verifies signature, issuer and expiry and checks the token kind.
func (i *issuer) parse(token, kind string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuerName), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse %s token: %w", kind, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("expected %s token, got %q", kind, claims.Kind)
	}
	return claims, nil
}
