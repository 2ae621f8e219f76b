package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
)

// AccessCookieName carries the access token for browser sessions.
const AccessCookieName = "rp_access"

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	IdentityKey contextKey = "identity"
)

// Authenticator resolves a raw access token to the current identity.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*identity.Record, error)
}

// Auth returns middleware that requires a valid session. The identity is
// loaded from the store on every request.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := tokenFromRequest(r)
			if !ok {
				errorhandler.Handle(r.Context(), w, session.ErrUnauthenticated)
				return
			}

			rec, err := authenticator.Authenticate(r.Context(), raw)
			if err != nil {
				errorhandler.Handle(r.Context(), w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), rec)))
		})
	}
}

// OptionalAuth attaches the identity when a valid session is present and
// continues anonymously otherwise.
func OptionalAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := tokenFromRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			rec, err := authenticator.Authenticate(r.Context(), raw)
			if err != nil {
				if !errors.Is(err, session.ErrUnauthenticated) {
					log.Debug().Err(err).Msg("Optional session rejected")
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), rec)))
		})
	}
}

// tokenFromRequest reads a Bearer header first, then the access cookie.
func tokenFromRequest(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if c, err := r.Cookie(AccessCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// WithIdentity stores rec in ctx.
func WithIdentity(ctx context.Context, rec *identity.Record) context.Context {
	ctx = context.WithValue(ctx, IdentityKey, rec)
	return context.WithValue(ctx, UserIDKey, rec.ID)
}

// GetIdentity returns the authenticated record or nil.
func GetIdentity(ctx context.Context) *identity.Record {
	if rec, ok := ctx.Value(IdentityKey).(*identity.Record); ok {
		return rec
	}
	return nil
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
