package player

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// Handler handles player HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates player handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListOnline handles GET /api/players
func (h *Handler) ListOnline(w http.ResponseWriter, r *http.Request) {
	players, err := h.service.ListOnline(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, players)
}

// Get handles GET /api/players/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid player ID")
		return
	}

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.OK(w, p)
}

// Stats handles GET /api/players/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Leaderboard(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, board)
}

// AddMoney handles POST /api/players/money
func (h *Handler) AddMoney(w http.ResponseWriter, r *http.Request) {
	var req AddMoneyRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	tx, err := h.service.AddMoney(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.OK(w, tx)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		response.NotFound(w, "Player not found")
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidAccount):
		response.BadRequest(w, err.Error())
	default:
		errorhandler.Handle(r.Context(), w, err)
	}
}
