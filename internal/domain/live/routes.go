package live

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Routes returns the live feed router, mounted at /ws.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(authMiddleware, middleware.RequireRoles(roles.Staff)).Get("/", h.Connect)
	return r
}
