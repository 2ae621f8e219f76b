package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Routes returns admin routes mounted at /api/admin. Staff may read; only
// Director changes accounts.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)
	r.Use(middleware.RequireRoles(roles.Staff))

	r.Get("/roles", h.Roles)

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Get("/{id}", h.GetUser)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRoles(roles.Director))
			r.Put("/{id}/roles", h.SetRoles)
			r.Put("/{id}/status", h.SetStatus)
			r.Delete("/{id}", h.DeleteUser)
		})
	})

	r.With(middleware.RequireRoles(roles.Director)).Get("/audit", h.AuditLog)

	return r
}
