// Package postgres implements the ledger on PostgreSQL.
//
// Every update is one database transaction that first takes a transaction
// scoped advisory lock, so updates are totally ordered across all registry
// processes sharing the database. Views run as READ ONLY REPEATABLE READ
// transactions and never wait for the lock.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	attestationstore "vcregistry/internal/attestation/store"
	directorystore "vcregistry/internal/directory/store"
	"vcregistry/internal/ledger"
	"vcregistry/internal/platform/database"
	"vcregistry/pkg/platform/outbox"
	outboxpostgres "vcregistry/pkg/platform/outbox/store/postgres"
)

const (
	backend = "postgres"

	// DefaultLockKey is the advisory lock id shared by every registry process.
	DefaultLockKey int64 = 0x7663726567 // "vcreg"

	defaultTxTimeout = 5 * time.Second
)

// Ledger is the PostgreSQL ledger.
type Ledger struct {
	db        *sql.DB
	lockKey   int64
	txTimeout time.Duration
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLockKey overrides the advisory lock id, e.g. to run two registries in one database.
func WithLockKey(key int64) Option {
	return func(l *Ledger) { l.lockKey = key }
}

// WithTxTimeout bounds each transaction when the caller's context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.txTimeout = d }
}

func New(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, lockKey: DefaultLockKey, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Update(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	defer func() { ledger.ObserveUpdate(backend, err) }()

	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback() //nolint:errcheck // rollback error is secondary
		}
	}()

	start := time.Now()
	if _, err = sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, l.lockKey); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	ledger.ObserveLockWait(backend, time.Since(start))

	if err = fn(newTxn(sqlTx)); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

func (l *Ledger) View(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	sqlTx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin ledger view: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback() //nolint:errcheck // read-only, nothing to keep
	}()

	return fn(newTxn(sqlTx))
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || l.txTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.txTimeout)
}

type txn struct {
	verifiers     *directorystore.PostgresStore
	verifications *attestationstore.PostgresStore
	counters      *counters
	events        *outboxpostgres.Store
}

func newTxn(tx *sql.Tx) *txn {
	return &txn{
		verifiers:     directorystore.NewPostgres(tx),
		verifications: attestationstore.NewPostgres(tx),
		counters:      &counters{db: tx},
		events:        outboxpostgres.New(tx),
	}
}

func (t *txn) Verifiers() ledger.VerifierStore         { return t.verifiers }
func (t *txn) Verifications() ledger.VerificationStore { return t.verifications }
func (t *txn) Counters() ledger.Counters               { return t.counters }
func (t *txn) Events() outbox.Appender                 { return t.events }

type counters struct {
	db database.DBTX
}

func (c *counters) Get(ctx context.Context, name ledger.Counter) (uint64, error) {
	var value int64
	err := c.db.QueryRowContext(ctx, `SELECT value FROM registry_counters WHERE name = $1`, string(name)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return uint64(value), nil // #nosec G115 -- CHECK (value >= 0)
}

func (c *counters) Set(ctx context.Context, name ledger.Counter, value uint64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO registry_counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, string(name), int64(value)) // #nosec G115 -- counts stay far below MaxInt64
	if err != nil {
		return fmt.Errorf("write counter %s: %w", name, err)
	}
	return nil
}
