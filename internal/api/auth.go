package api

import (
	"context"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/validator"
)

// AuthAPI covers sign in, sign up, session reload and password reset.
// Every call that obtains tokens skips the refresh protocol.
type AuthAPI struct {
	r Requester
}

// Login exchanges credentials for a token pair.
func (a *AuthAPI) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := a.r.Post(ctx, EndpointLogin, req, &out, client.SkipAuthRefresh()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers and signs in a new customer.
func (a *AuthAPI) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := a.r.Post(ctx, EndpointSignup, req, &out, client.SkipAuthRefresh()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session on the server.
func (a *AuthAPI) Logout(ctx context.Context) error {
	return a.r.Post(ctx, EndpointLogout, nil, nil, client.SkipAuthRefresh())
}

// Refresh exchanges a refresh token for a new pair. The pipeline refreshes
// on its own; this is for callers that want to do it eagerly.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*domain.AuthTokens, error) {
	var out domain.AuthTokens
	body := map[string]string{"refreshToken": refreshToken}
	if err := a.r.Post(ctx, EndpointRefresh, body, &out, client.SkipAuthRefresh()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reload returns the profile of the token's owner.
func (a *AuthAPI) Reload(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if err := a.r.Get(ctx, EndpointReload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestPasswordReset mails a reset link to email.
func (a *AuthAPI) RequestPasswordReset(ctx context.Context, req RequestPasswordResetRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	return a.r.Post(ctx, EndpointRequestPasswordReset, req, nil, client.SkipAuthRefresh())
}

// ResetPassword sets a new password using a reset token.
func (a *AuthAPI) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	return a.r.Post(ctx, EndpointResetPassword, req, nil, client.SkipAuthRefresh())
}

// OAuthAPI covers third-party sign in.
type OAuthAPI struct {
	r Requester
}

// Redirect returns the provider's consent URL.
func (o *OAuthAPI) Redirect(ctx context.Context, provider string) (*OAuthRedirectResponse, error) {
	if err := validateProvider(provider); err != nil {
		return nil, err
	}
	var out OAuthRedirectResponse
	if err := o.r.Get(ctx, OAuthRedirectEndpoint(provider), &out, client.SkipAuthRefresh()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Callback completes sign in with the code the provider returned.
func (o *OAuthAPI) Callback(ctx context.Context, provider string, req OAuthCallbackRequest) (*AuthResponse, error) {
	if err := validateProvider(provider); err != nil {
		return nil, err
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := o.r.Post(ctx, OAuthCallbackEndpoint(provider), req, &out, client.SkipAuthRefresh()); err != nil {
		return nil, err
	}
	return &out, nil
}

func validateProvider(provider string) error {
	return validator.Var(provider, "required,oneof="+ProviderGoogle+" "+ProviderGitHub, "provider")
}

// validate turns struct validation failures into a 400 AppError.
func validate(v any) error {
	if err := validator.Validate(v); err != nil {
		if ve, ok := err.(*validator.ValidationError); ok {
			return ve.AppError()
		}
		return err
	}
	return nil
}
