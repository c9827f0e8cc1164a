// Package ledger is the single persistent store shared by the verifier
// directory and the verification registry.
//
// Every registry operation runs inside one Update or View call. Updates are
// totally ordered and atomic: either every write the callback made (records,
// indexes, counters, outbox events) becomes visible, or none does.
package ledger

import (
	"context"
	"errors"

	attestationmodels "vcregistry/internal/attestation/models"
	directorymodels "vcregistry/internal/directory/models"
	"vcregistry/pkg/domain"
	"vcregistry/pkg/platform/outbox"
)

// ErrReadOnly is returned when a View callback attempts a write.
var ErrReadOnly = errors.New("ledger: write in read-only transaction")

// Counter names the explicit state counters owned by the ledger.
type Counter string

const (
	CounterVerifiers     Counter = "verifier_count"
	CounterVerifications Counter = "verification_count"
)

// VerifierStore holds verifier records and the signing key reverse index.
// Lookups of unknown keys return sentinel.ErrNotFound.
type VerifierStore interface {
	FindByAccount(ctx context.Context, account domain.Address) (*directorymodels.Verifier, error)
	Save(ctx context.Context, v *directorymodels.Verifier) error
	Delete(ctx context.Context, account domain.Address) error

	AccountForKey(ctx context.Context, signingKey domain.Address) (domain.Address, error)
	BindKey(ctx context.Context, signingKey, account domain.Address) error
	UnbindKey(ctx context.Context, signingKey domain.Address) error
}

// VerificationStore holds verification records and the two append-only
// per-subject and per-verifier id sequences. Deleting a record leaves its id
// in both sequences.
type VerificationStore interface {
	FindByID(ctx context.Context, id domain.VerificationID) (*attestationmodels.Verification, error)
	Save(ctx context.Context, v *attestationmodels.Verification) error
	Delete(ctx context.Context, id domain.VerificationID) error

	AppendToSubject(ctx context.Context, subject domain.Address, id domain.VerificationID) error
	AppendToVerifier(ctx context.Context, verifier domain.Address, id domain.VerificationID) error
	SubjectSequence(ctx context.Context, subject domain.Address) ([]domain.VerificationID, error)
	VerifierSequence(ctx context.Context, verifier domain.Address) ([]domain.VerificationID, error)
}

// Counters holds the ledger's explicit counters. Missing counters read as zero.
type Counters interface {
	Get(ctx context.Context, name Counter) (uint64, error)
	Set(ctx context.Context, name Counter, value uint64) error
}

// Tx is the view of the ledger inside one unit of work.
type Tx interface {
	Verifiers() VerifierStore
	Verifications() VerificationStore
	Counters() Counters
	Events() outbox.Appender
}

// Ledger runs units of work.
type Ledger interface {
	// Update runs fn as one serialized read-write transaction. A non-nil
	// error from fn rolls every write back and is returned unchanged.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent snapshot. Writes fail with ErrReadOnly.
	View(ctx context.Context, fn func(tx Tx) error) error
}
