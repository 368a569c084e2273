package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("cache: key not found")

// Store is a short-lived key-value store with per-entry TTL. It holds the
// pending WebAuthn challenge (at most one per identity; Put overwrites,
// last writer wins) and email verification codes.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
