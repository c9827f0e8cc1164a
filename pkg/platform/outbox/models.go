package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate types carried on every entry so consumers can route without decoding payloads.
const (
	AggregateVerifier     = "verifier"
	AggregateVerification = "verification"
)

// Entry is a pending event in the outbox. It is written in the same ledger
// transaction as the state change it describes and published afterwards.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string     // verifier account or verification uuid, hex encoded
	EventType     string     // e.g. "verifier_added", "verification_revoked"
	Payload       []byte     // JSON-encoded event body
	CreatedAt     time.Time  // request time of the operation that emitted it
	ProcessedAt   *time.Time // nil while pending
}

// IsPending returns true if this entry has not been published yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates a new outbox entry with a generated ID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, createdAt time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     createdAt,
	}
}
