package session

import (
	"errors"

	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

var (
	ErrUnauthenticated      = errors.New("authentication required")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
	ErrRefreshUnavailable   = errors.New("refresh tokens are disabled")

	// ErrAccountBanned is shared with the permission decisions so either
	// layer can be matched with errors.Is.
	ErrAccountBanned = roles.ErrAccountBanned
)
