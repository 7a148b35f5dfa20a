// Package fetcher downloads remote files over HTTP and reads the tabular
// and archived registry files they carry.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path, replacing it atomically.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadIfChanged fetches the URL into path only when the server's
	// ETag differs from etag. Returns the new ETag and whether the file
	// was rewritten.
	DownloadIfChanged(ctx context.Context, url string, path string, etag string) (string, bool, error)
}
