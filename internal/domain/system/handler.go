package system

import (
	"errors"
	"net/http"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// Handler handles settings and system HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates system handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetSettings handles GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, settings)
}

// UpdateSettings handles PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, settings)
}

// Status handles GET /api/system/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, status)
}

// Backup handles POST /api/system/backup
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Backup(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrBackupInProgress) {
			response.Conflict(w, err.Error())
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, b)
}

// Backups handles GET /api/system/backups
func (h *Handler) Backups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.service.Backups(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, backups)
}

// PublicStats handles GET /api/stats
func (h *Handler) PublicStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.PublicStats(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, stats)
}
