package domain

import (
	"strings"
	"time"
)

// User is the authenticated customer's profile.
type User struct {
	ID        string  `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatarUrl"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// AuthTokens is the token pair issued on login, signup, OAuth callback and
// refresh. Expiry instants are the server-declared ones; zero means unknown.
type AuthTokens struct {
	AccessToken           string    `json:"token"`
	AccessTokenExpiresAt  time.Time `json:"expiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// AuthResult is the body of every successful authentication call.
type AuthResult struct {
	User User `json:"user"`
	AuthTokens
}
