package store

import (
	"context"

	"github.com/floodwatch/floodcounts/internal/domain"
)

// Backend is durable month-partition storage. A partition is the full record
// set for one "YYYY-MM" key, sorted ascending by timestamp with no duplicate
// timestamps. Reading a partition that was never written returns an empty
// slice, not an error.
type Backend interface {
	// Name identifies the backend in logs ("postgres", "localcsv").
	Name() string

	// ReadPartition loads every record in the partition.
	ReadPartition(ctx context.Context, key string) ([]domain.CountRecord, error)

	// WritePartition replaces the partition's contents atomically.
	WritePartition(ctx context.Context, key string, records []domain.CountRecord) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
