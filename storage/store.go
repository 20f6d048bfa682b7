package storage

import (
	"context"
	"errors"
)

// Store is a byte-oriented key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrNotFound is returned when a key is not found.
var ErrNotFound = errors.New("key not found in store")
