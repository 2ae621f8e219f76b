package moderation

import "errors"

var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrAlreadyBanned       = errors.New("player already has an active ban")
	ErrNotBanned           = errors.New("player has no active ban")
	ErrInvalidBanDuration  = errors.New("invalid ban duration")
	ErrBanDurationRequired = errors.New("duration is required for bans")
)
