package core

import (
	"context"
	"errors"
)

// ErrFeedUnavailable is returned when a source has no feed to offer (missing file, empty store)
var ErrFeedUnavailable = errors.New("feed unavailable")

// FeedSource delivers the full block log for one reporting cycle
type FeedSource interface {
	// Fetch returns the current snapshot of the feed
	Fetch(ctx context.Context) (*Feed, error)

	// Describe names the source for logs and metadata
	Describe() string
}

// RecordStore persists ingested block records
type RecordStore interface {
	// SaveRecords stores records that are not yet present for their (height, chain) pair.
	// Earlier records always win. It returns the number of records actually inserted.
	SaveRecords(ctx context.Context, records []BlockRecord) (int, error)

	// LoadRecords returns every stored record in insertion order
	LoadRecords(ctx context.Context) ([]BlockRecord, error)
}

// UpdateHandler is called after a changed feed has been analyzed
type UpdateHandler func(ctx context.Context, result *Result) error
