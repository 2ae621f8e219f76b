package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/pkg/jwt"
)

// Tokens returned to the client after login or refresh.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// Reader is the part of the identity store sessions need.
type Reader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.Record, error)
}

// Authority binds credentials to an internal id and resolves the current
// identity on every request.
type Authority struct {
	jwt     *jwt.Service
	store   Reader
	refresh RefreshStore
}

// NewAuthority creates the session authority.
func NewAuthority(jwtService *jwt.Service, store Reader, refresh RefreshStore) *Authority {
	return &Authority{jwt: jwtService, store: store, refresh: refresh}
}

// Issue creates an access and a refresh token for rec.
func (a *Authority) Issue(ctx context.Context, rec *identity.Record) (*Tokens, error) {
	if rec.IsBanned() {
		return nil, ErrAccountBanned
	}
	access, err := a.jwt.GenerateAccessToken(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := a.jwt.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := a.refresh.Save(ctx, jwt.HashRefreshToken(refresh), rec.ID, a.jwt.GetRefreshTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(a.jwt.GetAccessTTL().Seconds()),
	}, nil
}

// Authenticate resolves a raw access token to the current record. A store
// failure is returned as is so callers never treat it as a valid session.
func (a *Authority) Authenticate(ctx context.Context, raw string) (*identity.Record, error) {
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := a.jwt.ValidateAccessToken(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return a.resolve(ctx, claims.UserID)
}

// Refresh rotates a refresh token.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (*identity.Record, *Tokens, error) {
	if refreshToken == "" {
		return nil, nil, ErrRefreshTokenRequired
	}
	userID, err := a.refresh.Take(ctx, jwt.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) || errors.Is(err, ErrRefreshUnavailable) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("read refresh token: %w", err)
	}
	rec, err := a.resolve(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := a.Issue(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, tokens, nil
}

// Revoke invalidates a refresh token. Unknown tokens are ignored.
func (a *Authority) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return a.refresh.Delete(ctx, jwt.HashRefreshToken(refreshToken))
}

func (a *Authority) resolve(ctx context.Context, id uuid.UUID) (*identity.Record, error) {
	rec, err := a.store.FindByID(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("user_id", id.String()).Msg("Session lookup failed")
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if rec == nil {
		return nil, ErrUnauthenticated
	}
	if rec.IsBanned() {
		return nil, ErrAccountBanned
	}
	return rec, nil
}
