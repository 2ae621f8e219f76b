package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/errorhandler"
	"github.com/kcrp/rp-dashboard/internal/pkg/logger"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// Handler handles auth HTTP requests
type Handler struct {
	service     *Service
	cookies     CookieConfig
	frontendURL string
}

// NewHandler creates auth handler
func NewHandler(service *Service, cookies CookieConfig, frontendURL string) *Handler {
	return &Handler{service: service, cookies: cookies, frontendURL: frontendURL}
}

// Register handles POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	// Validate request
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	result, err := h.service.Register(r.Context(), &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	h.setSession(w, result)
	response.Created(w, result)
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	// Validate request
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	result, err := h.service.Login(r.Context(), &req)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) && !errors.Is(err, roles.ErrAccountBanned) {
			log.Error().Err(err).Str("email", req.Email).Msg("login failed with internal error")
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	h.setSession(w, result)
	response.OK(w, result)
}

// Refresh handles POST /api/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(r.Body, &req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return
		}
	}

	result, err := h.service.Refresh(r.Context(), refreshFromRequest(r, req.RefreshToken))
	if err != nil {
		h.cookies.clearSession(w)
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	h.setSession(w, result)
	response.OK(w, result)
}

// Logout handles POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength != 0 {
		_ = response.DecodeJSON(r.Body, &req)
	}

	if err := h.service.Logout(r.Context(), refreshFromRequest(r, req.RefreshToken)); err != nil {
		logger.FromContext(r.Context()).Warn().Err(err).Msg("Failed to revoke refresh token")
	}

	h.cookies.clearSession(w)
	response.NoContent(w)
}

// Me handles GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	rec := middleware.GetIdentity(r.Context())
	response.OK(w, identity.NewView(rec))
}

// Permission handles GET /api/auth/permissions/{label}
func (h *Handler) Permission(w http.ResponseWriter, r *http.Request) {
	rec := middleware.GetIdentity(r.Context())

	result, err := h.service.HasPermission(rec, chi.URLParam(r, "label"))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, result)
}

// DiscordLogin handles GET /auth/discord. With ?mode=link and a session the
// Discord account is linked to the signed-in user.
func (h *Handler) DiscordLogin(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		response.InternalError(w)
		return
	}

	var linkFor *identity.Record
	if r.URL.Query().Get("mode") == "link" {
		linkFor = middleware.GetIdentity(r.Context())
		if linkFor == nil {
			errorhandler.Handle(r.Context(), w, session.ErrUnauthenticated)
			return
		}
	}

	target, err := h.service.BeginDiscord(r.Context(), state, linkFor)
	if err != nil {
		logger.FromContext(r.Context()).Warn().Err(err).Msg("Failed to start Discord link")
		response.ExternalUnavailable(w)
		return
	}

	h.cookies.set(w, stateCookieName, state, "/auth/discord", stateCookieTTL)
	http.Redirect(w, r, target, http.StatusFound)
}

// DiscordCallback handles GET /auth/discord/callback
func (h *Handler) DiscordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	cookie, err := r.Cookie(stateCookieName)
	h.cookies.clear(w, stateCookieName, "/auth/discord")
	if err != nil || state == "" || cookie.Value != state {
		h.redirectError(w, r, ErrInvalidState)
		return
	}
	if q.Get("error") != "" {
		// user declined on the Discord consent screen
		h.redirect(w, r, "/login", url.Values{"error": {"access_denied"}})
		return
	}

	result, err := h.service.ReconcileFromOAuth(r.Context(), q.Get("code"), state, middleware.GetIdentity(r.Context()))
	if err != nil {
		h.redirectError(w, r, err)
		return
	}

	h.cookies.setSession(w, result.Tokens)

	params := url.Values{}
	switch {
	case result.IsLinking:
		params.Set("linked", "1")
		h.redirect(w, r, "/account", params)
	case result.IsNewAccount:
		params.Set("welcome", "1")
		h.redirect(w, r, "/dashboard", params)
	default:
		h.redirect(w, r, "/dashboard", params)
	}
}

// UnlinkDiscord handles POST /api/account/unlink-discord
func (h *Handler) UnlinkDiscord(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.UnlinkDiscord(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, view)
}

func (h *Handler) setSession(w http.ResponseWriter, result *AuthResponse) {
	h.cookies.setSession(w, &session.Tokens{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresIn:    result.Tokens.ExpiresIn,
	})
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path string, params url.Values) {
	target := h.frontendURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, err error) {
	code := oauthErrorCode(err)
	event := logger.FromContext(r.Context()).Warn()
	if code == "server_error" {
		event = logger.FromContext(r.Context()).Error()
	}
	event.Err(err).Str("error_code", code).Msg("Discord sign-in failed")
	h.redirect(w, r, "/login", url.Values{"error": {code}})
}

// oauthErrorCode is the value of the error query parameter the frontend
// shows a message for.
func oauthErrorCode(err error) string {
	switch {
	case errors.Is(err, identity.ErrNotAGuildMember):
		return "not_guild_member"
	case errors.Is(err, identity.ErrExternalUnavailable), errors.Is(err, discord.ErrUnavailable),
		errors.Is(err, discord.ErrRateLimited), errors.Is(err, ErrLinkUnavailable):
		return "discord_unavailable"
	case errors.Is(err, identity.ErrConflictingLink):
		return "conflicting_link"
	case errors.Is(err, roles.ErrAccountBanned):
		return "banned"
	case errors.Is(err, ErrLinkExpired):
		return "link_expired"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrMissingOAuthCode), errors.Is(err, discord.ErrInvalidCode):
		return "invalid_request"
	default:
		return "server_error"
	}
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
