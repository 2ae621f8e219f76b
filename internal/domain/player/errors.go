package player

import "errors"

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrInvalidAccount = errors.New("account must be cash or bank")
)
