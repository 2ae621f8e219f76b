package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// SettingsRoutes returns settings routes mounted at /api/settings
func (h *Handler) SettingsRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)

	r.Get("/", h.GetSettings)
	r.With(middleware.RequireRoles(roles.Director)).Put("/", h.UpdateSettings)

	return r
}

// Routes returns system routes mounted at /api/system
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)

	r.With(middleware.RequireRoles(roles.Staff)).Get("/status", h.Status)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRoles(roles.Director))
		r.Post("/backup", h.Backup)
		r.Get("/backups", h.Backups)
	})

	return r
}
