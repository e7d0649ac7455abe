// Package core defines the shared types and interfaces for the voice installer.
package core

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by a KeyValueStore when the requested key has never been written.
var ErrKeyNotFound = errors.New("key not found")

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// KeyValueStore is a small persistent store of named document slots.
// Get returns ErrKeyNotFound (possibly wrapped) for a slot that was never written.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}
