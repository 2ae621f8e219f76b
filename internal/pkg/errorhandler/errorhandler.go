package errorhandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/logger"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Handle maps identity, session and permission errors to the response
// envelope. Unknown errors are logged and reported as internal errors.
func Handle(ctx context.Context, w http.ResponseWriter, err error) {
	var permErr *roles.PermissionError
	switch {
	case errors.As(err, &permErr):
		response.InsufficientPermission(w, permErr.Required.Strings())
	case errors.Is(err, roles.ErrAccountBanned):
		response.AccountBanned(w)
	case errors.Is(err, session.ErrUnauthenticated),
		errors.Is(err, session.ErrInvalidRefreshToken),
		errors.Is(err, session.ErrRefreshTokenRequired),
		errors.Is(err, session.ErrRefreshUnavailable):
		response.Unauthorized(w, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid email or password")
	case errors.Is(err, identity.ErrNotAGuildMember):
		response.NotGuildMember(w)
	case errors.Is(err, identity.ErrExternalUnavailable), errors.Is(err, discord.ErrUnavailable):
		logger.FromContext(ctx).Warn().Err(err).Msg("Discord unavailable")
		response.ExternalUnavailable(w)
	case errors.Is(err, identity.ErrConflictingLink):
		response.ConflictingLink(w, "This Discord account is already linked to another user")
	case errors.Is(err, roles.ErrInvalidRole):
		response.InvalidRole(w, err.Error())
	case errors.Is(err, identity.ErrRoleManagedByDiscord):
		response.RoleManaged(w, err.Error())
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, roles.ErrUnknownDepartment):
		response.NotFound(w, err.Error())
	case errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, identity.ErrUsernameTaken),
		errors.Is(err, identity.ErrStaleRecord):
		response.Conflict(w, err.Error())
	case errors.Is(err, identity.ErrOwnerProtected), errors.Is(err, identity.ErrSelfAction):
		response.Forbidden(w, err.Error())
	case errors.Is(err, identity.ErrNotLinked),
		errors.Is(err, identity.ErrNoLocalCredential),
		errors.Is(err, identity.ErrInvalidStatus):
		response.BadRequest(w, err.Error())
	default:
		HandleError(ctx, w, http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred", err)
	}
}

// HandleError logs the error with the request logger and sends the envelope.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("error_code", code).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	response.Error(w, status, code, message)
}
