package moderation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// Handler handles moderation HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates moderation handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Warn handles POST /api/moderation/warn
func (h *Handler) Warn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Warn(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.Created(w, newLogEntryResponse(entry))
}

// Kick handles POST /api/moderation/kick
func (h *Handler) Kick(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Kick(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.Created(w, newLogEntryResponse(entry))
}

// Ban handles POST /api/moderation/ban
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	var req BanRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	ban, err := h.service.Ban(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.Created(w, newBanResponse(ban))
}

// Unban handles POST /api/moderation/unban
func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Unban(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.OK(w, newLogEntryResponse(entry))
}

// History handles GET /api/moderation/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	var playerID *int64
	if raw := r.URL.Query().Get("player_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.BadRequest(w, "Invalid player ID")
			return
		}
		playerID = &id
	}

	entries, err := h.service.History(r.Context(), playerID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, newLogEntryResponses(entries))
}

// ActiveBans handles GET /api/moderation/bans
func (h *Handler) ActiveBans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.service.ActiveBans(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	items := make([]BanResponse, 0, len(bans))
	for _, b := range bans {
		items = append(items, newBanResponse(b))
	}
	response.OK(w, items)
}

// Durations handles GET /api/moderation/durations
func (h *Handler) Durations(w http.ResponseWriter, r *http.Request) {
	response.OK(w, BanDurations)
}

// StaffStats handles GET /api/staff/stats
func (h *Handler) StaffStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.StaffStats(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, stats)
}

// RecentActions handles GET /api/staff/recent-actions
func (h *Handler) RecentActions(w http.ResponseWriter, r *http.Request) {
	recent, err := h.service.RecentActions(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, RecentActionsResponse{
		Bans:  newLogEntryResponses(recent.Bans),
		Kicks: newLogEntryResponses(recent.Kicks),
		Warns: newLogEntryResponses(recent.Warns),
	})
}

func decodeAction(w http.ResponseWriter, r *http.Request) (*ActionRequest, bool) {
	var req ActionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return nil, false
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return nil, false
	}
	return &req, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		response.NotFound(w, "Player not found")
	case errors.Is(err, ErrAlreadyBanned):
		response.Conflict(w, "Player already has an active ban")
	case errors.Is(err, ErrNotBanned):
		response.Conflict(w, "Player has no active ban")
	case errors.Is(err, ErrInvalidBanDuration), errors.Is(err, ErrBanDurationRequired):
		response.BadRequest(w, err.Error())
	default:
		errorhandler.Handle(r.Context(), w, err)
	}
}
