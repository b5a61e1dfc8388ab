package fakeapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// validateAccess is the middleware.TokenValidator of the signed-in routes.
func (s *Server) validateAccess(token string) (*middleware.Claims, error) {
	claims, err := s.tokens.parse(token, kindAccess)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Epoch != s.epoch {
		return nil, errors.New("access token revoked")
	}
	if err := s.checkSessionLocked(claims); err != nil {
		return nil, err
	}
	return &middleware.Claims{UserID: claims.Subject, Email: claims.Email}, nil
}

func (s *Server) checkSessionLocked(claims *tokenClaims) error {
	if _, ok := s.accounts[claims.Subject]; !ok {
		return errors.New("unknown user")
	}
	if claims.Session != s.sessions[claims.Subject] {
		return errors.New("session ended")
	}
	return nil
}

// respondAuth issues a token pair for u and writes the AuthResult.
func (s *Server) respondAuth(w http.ResponseWriter, r *http.Request, status int, u domain.User) {
	s.mu.Lock()
	session, epoch := s.sessions[u.ID], s.epoch
	s.mu.Unlock()

	tokens, err := s.tokens.issue(u, session, epoch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, status, domain.AuthResult{User: u, AuthTokens: tokens})
}

func (s *Server) userFromRequest(r *http.Request) (domain.User, bool) {
	id := middleware.UserIDFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.User{}, false
	}
	return acc.user, true
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	var (
		user domain.User
		hash []byte
	)
	if acc, ok := s.accounts[s.emails[normalizeEmail(req.Email)]]; ok {
		user, hash = acc.user, acc.passwordHash
	}
	s.mu.Unlock()

	if hash == nil || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		s.fail(w, r, apperrors.Unauthorized("invalid email or password"))
		return
	}
	s.respondAuth(w, r, http.StatusOK, user)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	user, err := s.Register(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "account registered", slog.String("user_id", user.ID))
	s.respondAuth(w, r, http.StatusCreated, user)
}

// logout ends the bearer's session. It succeeds without a usable token.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.BearerToken(r); ok {
		if claims, err := s.tokens.parse(token, kindAccess); err == nil {
			s.EndSessions(claims.Subject)
		}
	}
	httputil.NoContent(w)
}

// refresh rotates the pair. Each refresh token is accepted once.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	claims, err := s.tokens.parse(req.RefreshToken, kindRefresh)
	if err != nil {
		s.logger.DebugContext(r.Context(), "refresh rejected", slog.String("error", err.Error()))
		s.fail(w, r, apperrors.Unauthorized("invalid refresh token"))
		return
	}

	s.mu.Lock()
	err = s.checkSessionLocked(claims)
	if _, used := s.usedRefresh[claims.ID]; used && err == nil {
		err = errors.New("refresh token reused")
	}
	var user domain.User
	if err == nil {
		s.usedRefresh[claims.ID] = struct{}{}
		user = s.accounts[claims.Subject].user
	}
	session, epoch := s.sessions[claims.Subject], s.epoch
	s.mu.Unlock()

	if err != nil {
		s.logger.DebugContext(r.Context(), "refresh rejected", slog.String("error", err.Error()))
		s.fail(w, r, apperrors.Unauthorized("invalid refresh token"))
		return
	}

	tokens, err := s.tokens.issue(user, session, epoch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokens)
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromRequest(r)
	if !ok {
		s.fail(w, r, apperrors.Unauthorized("unknown user"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// requestPasswordReset answers 204 whether or not the email is known.
func (s *Server) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req api.RequestPasswordResetRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)

	s.mu.Lock()
	if id, ok := s.emails[email]; ok {
		token := uuid.NewString()
		s.resets[token] = resetGrant{userID: id, expiresAt: s.now().Add(s.cfg.ResetTTL)}
		s.mailbox[email] = token
	}
	s.mu.Unlock()

	httputil.NoContent(w)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ResetPasswordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), passwordCost)
	if err != nil {
		s.fail(w, r, fmt.Errorf("hash password: %w", err))
		return
	}

	s.mu.Lock()
	grant, ok := s.resets[req.Token]
	switch {
	case !ok:
		err = apperrors.InvalidInput("unknown reset token")
	case !s.now().Before(grant.expiresAt):
		delete(s.resets, req.Token)
		err = apperrors.Gone("reset token expired")
	default:
		delete(s.resets, req.Token)
		if acc, found := s.accounts[grant.userID]; found {
			acc.passwordHash = hash
			s.sessions[grant.userID]++
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.NoContent(w)
}

func oauthProvider(r *http.Request) (string, error) {
	provider := chi.URLParam(r, "provider")
	switch provider {
	case api.ProviderGoogle, api.ProviderGitHub:
		return provider, nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unsupported oauth provider %q", provider))
	}
}

func (s *Server) oauthRedirect(w http.ResponseWriter, r *http.Request) {
	provider, err := oauthProvider(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	state := uuid.NewString()
	s.mu.Lock()
	s.oauthStates[state] = provider
	s.mu.Unlock()

	query := url.Values{"client_id": {"storefront"}, "state": {state}}
	httputil.WriteJSON(w, http.StatusOK, api.OAuthRedirectResponse{
		RedirectURL: fmt.Sprintf("https://%s.example.com/oauth/authorize?%s", provider, query.Encode()),
	})
}

// oauthCallback accepts any code for a state it handed out. The code names
// the identity: an email, or a handle mapped to <handle>@<provider>.example.com.
func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := oauthProvider(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req api.OAuthCallbackRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	issuedFor, ok := s.oauthStates[req.State]
	delete(s.oauthStates, req.State)
	s.mu.Unlock()
	if !ok || issuedFor != provider {
		s.fail(w, r, apperrors.Unauthorized("invalid oauth state"))
		return
	}

	email := req.Code
	if !strings.Contains(email, "@") {
		email = req.Code + "@" + provider + ".example.com"
	}
	email = normalizeEmail(email)

	s.mu.Lock()
	var user domain.User
	acc, known := s.accounts[s.emails[email]]
	if known {
		user = acc.user
	}
	s.mu.Unlock()

	if !known {
		handle, _, _ := strings.Cut(email, "@")
		user, err = s.Register(email, uuid.NewString(), handle, strings.ToUpper(provider[:1])+provider[1:])
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.respondAuth(w, r, http.StatusOK, user)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	s.reload(w, r)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateProfileRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	id := middleware.UserIDFromContext(r.Context())

	s.mu.Lock()
	acc, ok := s.accounts[id]
	var user domain.User
	if ok {
		acc.user.FirstName = req.FirstName
		acc.user.LastName = req.LastName
		acc.user.AvatarURL = req.AvatarURL
		user = acc.user
	}
	s.mu.Unlock()

	if !ok {
		s.fail(w, r, apperrors.Unauthorized("unknown user"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
