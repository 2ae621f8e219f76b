package department

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
)

// Routes returns department routes mounted at /api/departments
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)

	r.Get("/", h.List)

	r.Route("/{dept}", func(r chi.Router) {
		r.With(middleware.RequireDepartmentView("dept")).Get("/members", h.Members)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireDepartmentEdit("dept"))
			r.Post("/command", h.AddCommand)
			r.Delete("/command/{id}", h.RemoveCommand)
			r.Put("/documents/{docID}", h.UpdateDocument)
		})
	})

	return r
}
