package ranker

import (
	"context"
	"time"
)

// SearchSource produces raw result items for a query.
type SearchSource interface {
	Search(ctx context.Context, query string, locale Locale) ([]SearchResult, error)
}

// Extractor fetches a channel profile and its most recent uploads.
type Extractor interface {
	Extract(ctx context.Context, channelURL string, maxVideos int) (Extraction, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes pipeline events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and worker IDs.
type IDGenerator interface {
	NewID() (string, error)
}
