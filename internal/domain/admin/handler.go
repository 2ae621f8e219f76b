package admin

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// Handler handles admin HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates admin handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListUsers handles GET /api/admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q := r.URL.Query()

	out, err := h.service.ListUsers(r.Context(), UserFilter{
		Role:   q.Get("role"),
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, out)
}

// GetUser handles GET /api/admin/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	v, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, v)
}

// SetRoles handles PUT /api/admin/users/{id}/roles
func (h *Handler) SetRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req SetRolesRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	v, err := h.service.SetRoles(r.Context(), middleware.GetUserID(r.Context()), id, req.Roles)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, v)
}

// SetStatus handles PUT /api/admin/users/{id}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	v, err := h.service.SetStatus(r.Context(), middleware.GetUserID(r.Context()), id, identity.Status(req.Status))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, v)
}

// DeleteUser handles DELETE /api/admin/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.NoContent(w)
}

// Roles handles GET /api/admin/roles
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	labels := roles.Vocabulary()
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, string(l))
	}
	response.OK(w, RolesResponse{Roles: out})
}

// AuditLog handles GET /api/admin/audit
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	filter := audit.Filter{Limit: limit, Offset: offset}

	if action := r.URL.Query().Get("action"); action != "" {
		filter.Action = &action
	}
	if targetType := r.URL.Query().Get("target_type"); targetType != "" {
		filter.TargetType = &targetType
	}
	if actor := r.URL.Query().Get("actor_id"); actor != "" {
		id, err := uuid.Parse(actor)
		if err != nil {
			response.BadRequest(w, "Invalid actor ID")
			return
		}
		filter.ActorID = &id
	}

	entries, total, err := h.service.AuditLog(r.Context(), filter)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"items": entries,
		"total": total,
	})
}

func userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
