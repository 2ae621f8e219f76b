package membersync

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/logger"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// EventsTokenHeader carries the secret shared with the bot.
const EventsTokenHeader = "X-Events-Token"

// Handler handles membership sync HTTP requests
type Handler struct {
	scheduler   *Scheduler
	eventsToken string
}

// NewHandler creates membership sync handler. An empty token disables the
// events endpoint.
func NewHandler(scheduler *Scheduler, eventsToken string) *Handler {
	return &Handler{
		scheduler:   scheduler,
		eventsToken: eventsToken,
	}
}

// MemberEvent applies a member event forwarded by the bot
// POST /internal/discord/events
func (h *Handler) MemberEvent(w http.ResponseWriter, r *http.Request) {
	if !h.tokenMatches(r.Header.Get(EventsTokenHeader)) {
		response.Unauthorized(w, "Invalid events token")
		return
	}

	var ev Event
	if err := response.DecodeJSON(r.Body, &ev); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errors := validator.Validate(&ev); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	if err := h.scheduler.Dispatch(r.Context(), ev); err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			response.BadRequest(w, err.Error())
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.NoContent(w)
}

// RunSync runs a full pass and returns its report
// POST /api/admin/sync
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.SyncAll(r.Context(), "manual")
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			response.Conflict(w, "A sync is already running")
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	logger.FromContext(r.Context()).Info().
		Str("actor_id", middleware.GetUserID(r.Context()).String()).
		Int("synced", report.Synced).
		Msg("Manual membership sync")

	response.OK(w, report)
}

// LastReport returns the most recent sync report
// GET /api/admin/sync/last
func (h *Handler) LastReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.LastReport(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			response.NotFound(w, "No sync has run yet")
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, report)
}

func (h *Handler) tokenMatches(got string) bool {
	if h.eventsToken == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.eventsToken)) == 1
}
