package movie

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, request FetchRequest) (FetchResponse, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error) {
	return f(ctx, request)
}

// BlobStore writes the output artifact and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RowStore persists consolidated rows for a run.
type RowStore interface {
	StoreRows(ctx context.Context, runID string, rows []Row) error
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Hasher computes digests of the written artifact.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
