package auth

import "errors"

var (
	ErrInvalidState     = errors.New("oauth state mismatch")
	ErrLinkExpired      = errors.New("link request expired, sign in and try again")
	ErrLinkUnavailable  = errors.New("account linking is unavailable")
	ErrMissingOAuthCode = errors.New("oauth code is required")
)
