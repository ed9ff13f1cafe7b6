// Package storage archives exported files in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrDisabled is returned by New when archiving is switched off.
var ErrDisabled = errors.New("object storage is disabled")

// Archive stores exported files.
type Archive interface {
	// Put stores body under key, replacing any existing object.
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error

	// URL returns the address clients use to download key.
	URL(key string) string

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}
