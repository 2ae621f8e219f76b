package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns auth router mounted at /api/auth
func (h *Handler) Routes(authMiddleware, rateLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// Public routes (no auth required)
	r.Group(func(r chi.Router) {
		r.Use(rateLimit)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)

	// Protected routes (auth required)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/me", h.Me)
		r.Get("/permissions/{label}", h.Permission)
	})

	return r
}

// DiscordRoutes returns the OAuth routes mounted at /auth/discord
func (h *Handler) DiscordRoutes(optionalAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(optionalAuth)
	r.Get("/", h.DiscordLogin)
	r.Get("/callback", h.DiscordCallback)

	return r
}

// AccountRoutes returns account routes mounted at /api/account
func (h *Handler) AccountRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)
	r.Post("/unlink-discord", h.UnlinkDiscord)

	return r
}
