// Package storage persists small named objects such as settings snapshots.
// It defines the Storage interface (port) and implementations for local
// disk and S3.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned by Load when no object exists for the key.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the store.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Storage defines the interface for object persistence.
type Storage interface {
	// Load returns a reader for the object stored under key.
	// The caller is responsible for closing the returned ReadCloser.
	// Returns ErrNotFound if the object does not exist.
	Load(ctx context.Context, key string) (io.ReadCloser, error)

	// Save stores data under key, replacing any previous object.
	Save(ctx context.Context, key string, data io.Reader) error
}
