// Package memory implements the ledger in process memory.
//
// Update takes an exclusive lock, stages writes on clones of the committed
// state and swaps the clones in only when the callback succeeds. Readers in
// View share the committed state, which is frozen and never mutated.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	attestationstore "vcregistry/internal/attestation/store"
	directorystore "vcregistry/internal/directory/store"
	"vcregistry/internal/ledger"
	"vcregistry/pkg/platform/outbox"
)

// Ledger is the in-memory ledger.
type Ledger struct {
	mu            sync.RWMutex
	verifiers     *directorystore.InMemoryStore
	verifications *attestationstore.InMemoryStore
	counters      map[ledger.Counter]uint64
	events        outbox.Appender
}

// New creates an empty ledger that publishes committed events to events.
func New(events outbox.Appender) *Ledger {
	verifiers := directorystore.NewInMemoryStore()
	verifiers.Freeze()
	verifications := attestationstore.NewInMemoryStore()
	verifications.Freeze()
	return &Ledger{
		verifiers:     verifiers,
		verifications: verifications,
		counters:      make(map[ledger.Counter]uint64),
		events:        events,
	}
}

const backend = "memory"

func (l *Ledger) Update(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger.ObserveLockWait(backend, time.Since(start))
	defer func() { ledger.ObserveUpdate(backend, err) }()

	tx := &txn{
		verifiers:     l.verifiers.Clone(),
		verifications: l.verifications.Clone(),
		counters:      &counters{values: maps.Clone(l.counters)},
		events:        &eventBuffer{},
	}
	if err := fn(tx); err != nil {
		return err
	}

	for _, entry := range tx.events.entries {
		if err := l.events.Append(ctx, entry); err != nil {
			return fmt.Errorf("publish committed event: %w", err)
		}
	}

	tx.verifiers.Freeze()
	tx.verifications.Freeze()
	l.verifiers = tx.verifiers
	l.verifications = tx.verifications
	l.counters = tx.counters.values
	return nil
}

func (l *Ledger) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	return fn(&txn{
		verifiers:     l.verifiers,
		verifications: l.verifications,
		counters:      &counters{values: l.counters, readOnly: true},
		events:        &eventBuffer{readOnly: true},
	})
}

type txn struct {
	verifiers     *directorystore.InMemoryStore
	verifications *attestationstore.InMemoryStore
	counters      *counters
	events        *eventBuffer
}

func (t *txn) Verifiers() ledger.VerifierStore         { return t.verifiers }
func (t *txn) Verifications() ledger.VerificationStore { return t.verifications }
func (t *txn) Counters() ledger.Counters               { return t.counters }
func (t *txn) Events() outbox.Appender                 { return t.events }

type counters struct {
	values   map[ledger.Counter]uint64
	readOnly bool
}

func (c *counters) Get(_ context.Context, name ledger.Counter) (uint64, error) {
	return c.values[name], nil
}

func (c *counters) Set(_ context.Context, name ledger.Counter, value uint64) error {
	if c.readOnly {
		return ledger.ErrReadOnly
	}
	c.values[name] = value
	return nil
}

// eventBuffer holds events until the transaction commits.
type eventBuffer struct {
	entries  []*outbox.Entry
	readOnly bool
}

func (b *eventBuffer) Append(_ context.Context, entry *outbox.Entry) error {
	if b.readOnly {
		return ledger.ErrReadOnly
	}
	b.entries = append(b.entries, entry)
	return nil
}
