// Package fetcher provides the shared HTTP GET path for upstream feeds:
// per-host politeness rate limits and bounded retry with backoff.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Get fetches the URL and returns the response body. The caller owns
	// the deadline via ctx and must close the body.
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}
