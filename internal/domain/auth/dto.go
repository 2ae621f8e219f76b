package auth

import (
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
)

// RegisterRequest for POST /api/auth/register
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest for POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest for POST /api/auth/refresh and /api/auth/logout. The token
// may come from the refresh cookie instead.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse returned after login/register/refresh
type AuthResponse struct {
	User   identity.View  `json:"user"`
	Tokens TokensResponse `json:"tokens"`
}

// TokensResponse represents tokens in API response
type TokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds until access token expires
	TokenType    string `json:"token_type"`
}

// PermissionResponse for GET /api/auth/permissions/{label}
type PermissionResponse struct {
	Role    string `json:"role"`
	Allowed bool   `json:"allowed"`
}

// OAuthResult is the outcome of a Discord sign-in or link.
type OAuthResult struct {
	Record       *identity.Record
	Tokens       *session.Tokens
	IsNewAccount bool
	IsLinking    bool
}

func newAuthResponse(rec *identity.Record, tokens *session.Tokens) *AuthResponse {
	return &AuthResponse{
		User: identity.NewView(rec),
		Tokens: TokensResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			ExpiresIn:    tokens.ExpiresIn,
			TokenType:    "Bearer",
		},
	}
}
