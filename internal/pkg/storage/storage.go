package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("object not found")

// Storage is the object store used for database backups.
type Storage interface {
	// Put stores the object under key, replacing any previous one.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete returns nil if the object does not exist.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Driver names the backend for status reports.
	Driver() string
}

// Config selects and configures a backend.
type Config struct {
	Driver   string // local or r2
	LocalDir string
	R2       R2Config
}

// New builds the backend named by cfg.Driver.
func New(cfg Config) (Storage, error) {
	if cfg.Driver == "r2" {
		return NewR2Storage(cfg.R2)
	}
	return NewLocalStorage(cfg.LocalDir)
}
