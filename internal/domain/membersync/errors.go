package membersync

import "errors"

var (
	ErrSyncInProgress = errors.New("a membership sync is already running")
	ErrInvalidEvent   = errors.New("invalid member event")
	ErrNoReport       = errors.New("no sync has completed yet")
)
