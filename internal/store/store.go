package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends after Close.
var ErrClosed = errors.New("store closed")

// Store is a string key-value backend holding user preferences and
// persisted counters. Implementations must be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// Get reports whether key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes all pairs atomically where the backend supports it.
	SetMany(ctx context.Context, kv map[string]string) error
	Delete(ctx context.Context, key string) error
	// List returns every stored pair.
	List(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
	Close() error
}
