package membersync

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// EventRoutes returns the bot-facing routes. They authenticate with the
// shared events token, not a user session.
func (h *Handler) EventRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/events", h.MemberEvent)

	return r
}

// AdminRoutes returns Director-only sync routes
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)
	r.Use(middleware.RequireRoles(roles.Director))

	r.Post("/", h.RunSync)
	r.Get("/last", h.LastReport)

	return r
}
