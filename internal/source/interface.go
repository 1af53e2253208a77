package source

import "context"

// Record is one labeled example read from a data source.
type Record struct {
	Line  int    // 1-based line number in the source, for error reporting
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Source defines the interface for labeled example sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// FetchBatch fetches a batch of records starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of records to fetch.
	// Returns:
	//   - records: batch of records; blank lines are skipped.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if reading or parsing fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (records []Record, nextCursor string, err error)
}
