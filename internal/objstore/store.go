// Package objstore moves pipeline inputs and artifacts in and out of object
// storage.
package objstore

import (
	"context"
	"io"
)

// Store is the object storage gateway used by the pipeline.
type Store interface {
	// Download copies the object at key to the local file dest.
	Download(ctx context.Context, key, dest string) error
	// Upload stores size bytes from r at key. size may be -1 when unknown.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}
