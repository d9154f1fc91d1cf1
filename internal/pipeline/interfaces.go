package pipeline

import (
	"context"
	"time"
)

// ListingFetcher enumerates candidate records for one source/year using a
// named strategy. A nil error with an empty slice is a successful empty
// listing; a non-nil error is a strategy failure.
type ListingFetcher interface {
	FetchListing(ctx context.Context, source string, year int, strategy string) ([]Record, error)
}

// DocumentFetcher retrieves the full text body for a record. Failed fetches
// return an error that carries a FailureCategory; see CategoryOf.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, rec Record) (string, error)
}

// RecordStore reads and replaces the whole dataset. SaveAll must be atomic
// from a reader's perspective: a concurrent LoadAll never observes a
// half-written set.
type RecordStore interface {
	LoadAll(ctx context.Context) ([]Record, error)
	SaveAll(ctx context.Context, records []Record) error
}

// BodyStore persists one document body per record and reports whether a
// previously recorded path still holds a body.
type BodyStore interface {
	SaveBody(ctx context.Context, rec Record, text string) (string, error)
	Exists(ctx context.Context, path string) bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
