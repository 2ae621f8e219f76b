package moderation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Routes returns moderation routes mounted at /api/moderation
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)
	r.Use(middleware.RequireRoles(roles.Staff))

	r.Post("/warn", h.Warn)
	r.Post("/kick", h.Kick)
	r.Post("/ban", h.Ban)
	r.Post("/unban", h.Unban)
	r.Get("/history", h.History)
	r.Get("/bans", h.ActiveBans)
	r.Get("/durations", h.Durations)

	return r
}

// StaffRoutes returns the staff panel routes mounted at /api/staff
func (h *Handler) StaffRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)
	r.Use(middleware.RequireRoles(roles.Staff))

	r.Get("/stats", h.StaffStats)
	r.Get("/recent-actions", h.RecentActions)

	return r
}
