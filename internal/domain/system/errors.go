package system

import "errors"

var (
	ErrBackupInProgress = errors.New("a backup is already running")
	ErrNoBackup         = errors.New("no backup has been taken")
)
