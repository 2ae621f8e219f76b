package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/logger"
	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Allowed checks the authenticated identity against required. It never
// returns nil without an identity in ctx.
func Allowed(ctx context.Context, required ...roles.Label) error {
	rec := GetIdentity(ctx)
	if rec == nil {
		return session.ErrUnauthenticated
	}
	return roles.Allow(rec.RoleSet(), rec.IsBanned(), required...)
}

// RequireRoles lets the request through when the identity holds Director or
// any of required.
func RequireRoles(required ...roles.Label) func(http.Handler) http.Handler {
	return gate(func(r *http.Request) error {
		return Allowed(r.Context(), required...)
	})
}

// RequireDepartmentEdit applies the Director or <DEPT>_Command policy to the
// department named by the URL parameter.
func RequireDepartmentEdit(param string) func(http.Handler) http.Handler {
	return gate(func(r *http.Request) error {
		rec := GetIdentity(r.Context())
		if rec == nil {
			return session.ErrUnauthenticated
		}
		dept, err := roles.ParseDepartment(chi.URLParam(r, param))
		if err != nil {
			return err
		}
		return roles.AllowDepartmentEdit(rec.RoleSet(), rec.IsBanned(), dept)
	})
}

// RequireDepartmentView admits department members, its command, Staff and
// Director.
func RequireDepartmentView(param string) func(http.Handler) http.Handler {
	return gate(func(r *http.Request) error {
		rec := GetIdentity(r.Context())
		if rec == nil {
			return session.ErrUnauthenticated
		}
		dept, err := roles.ParseDepartment(chi.URLParam(r, param))
		if err != nil {
			return err
		}
		return roles.AllowDepartmentView(rec.RoleSet(), rec.IsBanned(), dept)
	})
}

func gate(decide func(r *http.Request) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := decide(r)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			reason := denialReason(err)
			metrics.GateDenials.WithLabelValues(reason).Inc()

			event := logger.FromContext(r.Context()).Info().
				Str("path", r.URL.Path).
				Str("reason", reason).
				Str("user_id", GetUserID(r.Context()).String())
			var permErr *roles.PermissionError
			if errors.As(err, &permErr) {
				event = event.Strs("required_roles", permErr.Required.Strings())
			}
			event.Msg("Permission denied")

			errorhandler.Handle(r.Context(), w, err)
		})
	}
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, roles.ErrAccountBanned):
		return "banned"
	case errors.Is(err, roles.ErrInsufficientPermission):
		return "insufficient"
	case errors.Is(err, roles.ErrUnknownDepartment):
		return "unknown_department"
	default:
		return "error"
	}
}
