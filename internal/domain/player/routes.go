package player

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Routes returns player routes mounted at /api/players
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// All routes require authentication
	r.Use(authMiddleware)

	r.Get("/", h.ListOnline)
	r.Get("/stats", h.Stats)
	r.Get("/{id}", h.Get)

	r.With(middleware.RequireRoles(roles.Staff)).Post("/money", h.AddMoney)

	return r
}
