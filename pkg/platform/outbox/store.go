package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Appender is the write side used inside a ledger transaction.
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
}

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks

// Store defines the outbox persistence operations used by the worker.
// Implementations must be safe for concurrent use.
type Store interface {
	Appender

	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)

	// MarkProcessed marks an entry as published.
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error

	// CountPending returns the number of unprocessed entries.
	CountPending(ctx context.Context) (int64, error)

	// DeleteProcessedBefore removes old processed entries and returns how many were deleted.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
