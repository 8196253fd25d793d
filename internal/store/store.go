package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned by KV reads of absent or expired keys.
var ErrNotFound = errors.New("store: not found")

// KV is the storage port.
//
// Keys returns keys in ascending byte order. Range returns list values
// oldest first. Implementations are safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error

	// SetWithTTL stores value until ttl elapses. ttl <= 0 means no expiry.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Create stores value only when key is absent and reports whether it
	// did. ttl <= 0 means no expiry.
	Create(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Keys(ctx context.Context, prefix string) ([]string, error)

	// PushBounded appends value to the list at key, dropping the oldest
	// entries beyond max.
	PushBounded(ctx context.Context, key string, value []byte, max int) error
	Range(ctx context.Context, key string) ([][]byte, error)

	Close() error
}

// Backend names a KV implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

// Options selects and configures a backend.
type Options struct {
	Backend Backend
	Path    string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Open opens the configured backend.
func Open(opts Options) (KV, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(opts.Now), nil
	case BackendSQLite:
		return OpenSQLite(opts.Path, opts.Now)
	case BackendBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = opts.Path
		cfg.Logger = opts.Logger
		return OpenBadger(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
