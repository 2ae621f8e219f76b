package department

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// Handler handles department HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates department handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /api/departments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Overview(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, out)
}

// Members handles GET /api/departments/{dept}/members
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	dept, err := roles.ParseDepartment(chi.URLParam(r, "dept"))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	members, err := h.service.Members(r.Context(), dept)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, members)
}

// AddCommand handles POST /api/departments/{dept}/command
func (h *Handler) AddCommand(w http.ResponseWriter, r *http.Request) {
	dept, err := roles.ParseDepartment(chi.URLParam(r, "dept"))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	var req AddCommandRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	m, err := h.service.AddCommand(r.Context(), middleware.GetUserID(r.Context()), dept, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, m)
}

// RemoveCommand handles DELETE /api/departments/{dept}/command/{id}
func (h *Handler) RemoveCommand(w http.ResponseWriter, r *http.Request) {
	dept, err := roles.ParseDepartment(chi.URLParam(r, "dept"))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid command member ID")
		return
	}

	if err := h.service.RemoveCommand(r.Context(), middleware.GetUserID(r.Context()), dept, id); err != nil {
		h.handleError(w, r, err)
		return
	}

	response.NoContent(w)
}

// UpdateDocument handles PUT /api/departments/{dept}/documents/{docID}
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	dept, err := roles.ParseDepartment(chi.URLParam(r, "dept"))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "docID"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid document ID")
		return
	}

	var req UpdateDocumentRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	doc, err := h.service.UpdateDocument(r.Context(), middleware.GetUserID(r.Context()), dept, id, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.OK(w, doc)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrCommandNotFound):
		response.NotFound(w, "Command member not found")
	case errors.Is(err, ErrDocumentNotFound):
		response.NotFound(w, "Document not found")
	default:
		errorhandler.Handle(r.Context(), w, err)
	}
}
