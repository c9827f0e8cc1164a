// Package service implements the verifier directory: an owner-curated map of
// verifier accounts to their display name and signing key.
//
// Every operation runs as exactly one ledger unit of work. Mutations are gated
// on the configured owner account and emit one outbox event on success.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vcregistry/internal/directory/metrics"
	"vcregistry/internal/directory/models"
	"vcregistry/internal/ledger"
	"vcregistry/pkg/domain"
	dErrors "vcregistry/pkg/domain-errors"
	"vcregistry/pkg/platform/middleware/requesttime"
	"vcregistry/pkg/platform/outbox"
	"vcregistry/pkg/platform/sentinel"
	"vcregistry/pkg/platform/tracer"
	"vcregistry/pkg/requestcontext"
)

const (
	opAdd    = "add"
	opUpdate = "update"
	opRemove = "remove"
)

type Option func(*Service)

// Service owns the verifier directory.
type Service struct {
	ledger  ledger.Ledger
	owner   domain.Address
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// New creates a directory service whose mutations are reserved to owner.
func New(l ledger.Ledger, owner domain.Address, opts ...Option) *Service {
	svc := &Service{
		ledger: l,
		owner:  owner,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Owner returns the account allowed to mutate the directory.
func (s *Service) Owner() domain.Address {
	return s.owner
}

// AddVerifier registers v under v.Account.
func (s *Service) AddVerifier(ctx context.Context, caller domain.Address, v models.Verifier) (_ *models.Verifier, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAddVerifier,
		tracer.String(tracer.AttrCaller, caller.Hex()),
		tracer.String(tracer.AttrAccount, v.Account.Hex()),
	)
	defer func() {
		s.observe(ctx, opAdd, err)
		span.End(err)
	}()

	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := validateRecord(v); err != nil {
		return nil, err
	}

	var count uint64
	err = s.ledger.Update(ctx, func(tx ledger.Tx) error {
		existing, err := findVerifier(ctx, tx.Verifiers(), v.Account)
		if err != nil {
			return err
		}
		if existing != nil {
			return dErrors.New(dErrors.CodeAlreadyExists, "verifier already exists")
		}
		if err := ensureKeyAvailable(ctx, tx.Verifiers(), v.SigningKey, v.Account); err != nil {
			return err
		}

		if err := tx.Verifiers().Save(ctx, &v); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verifier")
		}
		if err := tx.Verifiers().BindKey(ctx, v.SigningKey, v.Account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index signing key")
		}
		count, err = adjustCount(ctx, tx.Counters(), +1)
		if err != nil {
			return err
		}
		return emit(ctx, tx.Events(), models.EventVerifierAdded, v)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "verifier added",
		"request_id", requestcontext.RequestID(ctx),
		"account", v.Account.Hex(),
		"signing_key", v.SigningKey.Hex(),
	)
	s.setActive(count)
	return &v, nil
}

// UpdateVerifier overwrites the record for v.Account. When the signing key
// changes the old reverse entry is cleared so it no longer resolves.
func (s *Service) UpdateVerifier(ctx context.Context, caller domain.Address, v models.Verifier) (_ *models.Verifier, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanUpdateVerifier,
		tracer.String(tracer.AttrCaller, caller.Hex()),
		tracer.String(tracer.AttrAccount, v.Account.Hex()),
	)
	defer func() {
		s.observe(ctx, opUpdate, err)
		span.End(err)
	}()

	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := validateRecord(v); err != nil {
		return nil, err
	}

	err = s.ledger.Update(ctx, func(tx ledger.Tx) error {
		existing, err := findVerifier(ctx, tx.Verifiers(), v.Account)
		if err != nil {
			return err
		}
		if existing == nil {
			return dErrors.New(dErrors.CodeNotFound, "verifier not found")
		}
		if err := ensureKeyAvailable(ctx, tx.Verifiers(), v.SigningKey, v.Account); err != nil {
			return err
		}

		if existing.SigningKey != v.SigningKey {
			if err := tx.Verifiers().UnbindKey(ctx, existing.SigningKey); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear signing key")
			}
		}
		if err := tx.Verifiers().Save(ctx, &v); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verifier")
		}
		if err := tx.Verifiers().BindKey(ctx, v.SigningKey, v.Account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index signing key")
		}
		return emit(ctx, tx.Events(), models.EventVerifierUpdated, v)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "verifier updated",
		"request_id", requestcontext.RequestID(ctx),
		"account", v.Account.Hex(),
		"signing_key", v.SigningKey.Hex(),
	)
	return &v, nil
}

// RemoveVerifier deletes the verifier and its signing key entry. Attestations
// it issued are left untouched.
func (s *Service) RemoveVerifier(ctx context.Context, caller, account domain.Address) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRemoveVerifier,
		tracer.String(tracer.AttrCaller, caller.Hex()),
		tracer.String(tracer.AttrAccount, account.Hex()),
	)
	defer func() {
		s.observe(ctx, opRemove, err)
		span.End(err)
	}()

	if err := s.requireOwner(caller); err != nil {
		return err
	}

	var count uint64
	err = s.ledger.Update(ctx, func(tx ledger.Tx) error {
		existing, err := findVerifier(ctx, tx.Verifiers(), account)
		if err != nil {
			return err
		}
		if existing == nil {
			return dErrors.New(dErrors.CodeNotFound, "verifier not found")
		}

		if err := tx.Verifiers().UnbindKey(ctx, existing.SigningKey); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear signing key")
		}
		if err := tx.Verifiers().Delete(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete verifier")
		}
		count, err = adjustCount(ctx, tx.Counters(), -1)
		if err != nil {
			return err
		}
		return emit(ctx, tx.Events(), models.EventVerifierRemoved, *existing)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "verifier removed",
		"request_id", requestcontext.RequestID(ctx),
		"account", account.Hex(),
	)
	s.setActive(count)
	return nil
}

// IsVerifier reports whether account is a registered verifier.
func (s *Service) IsVerifier(ctx context.Context, account domain.Address) (bool, error) {
	var ok bool
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		existing, err := findVerifier(ctx, tx.Verifiers(), account)
		ok = existing != nil
		return err
	})
	return ok, err
}

// VerifierCount returns the number of registered verifiers.
func (s *Service) VerifierCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		var err error
		count, err = tx.Counters().Get(ctx, ledger.CounterVerifiers)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verifier count")
		}
		return nil
	})
	return count, err
}

// GetVerifier returns the record for account.
func (s *Service) GetVerifier(ctx context.Context, account domain.Address) (*models.Verifier, error) {
	var v *models.Verifier
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		existing, err := findVerifier(ctx, tx.Verifiers(), account)
		if err != nil {
			return err
		}
		if existing == nil {
			return dErrors.New(dErrors.CodeNotFound, "verifier not found")
		}
		v = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) requireOwner(caller domain.Address) error {
	if caller.IsNil() || caller != s.owner {
		return dErrors.New(dErrors.CodeNotAuthorized, "caller is not the directory owner")
	}
	return nil
}

func (s *Service) observe(ctx context.Context, operation string, err error) {
	if err == nil {
		if s.metrics != nil {
			s.metrics.IncrementMutation(operation)
		}
		return
	}
	code := dErrors.CodeOf(err)
	if s.metrics != nil {
		s.metrics.IncrementRejected(operation, string(code))
	}
	if code == dErrors.CodeInternal {
		s.logger.ErrorContext(ctx, "verifier directory mutation failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", operation,
			"error", err,
		)
	}
}

func (s *Service) setActive(count uint64) {
	if s.metrics != nil {
		s.metrics.SetActiveVerifiers(count)
	}
}

// RequireVerifier returns the registered verifier for account, or
// NotAuthorized when account is not one. It runs inside the caller's
// transaction so the check and the mutation it guards see the same state.
func RequireVerifier(ctx context.Context, store ledger.VerifierStore, account domain.Address) (*models.Verifier, error) {
	v, err := findVerifier(ctx, store, account)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, dErrors.New(dErrors.CodeNotAuthorized, "caller is not a registered verifier")
	}
	return v, nil
}

// ResolveSigner maps a recovered signing key to the verifier it belongs to.
// A key with no reverse entry, or whose owner no longer lists it, fails with
// InvalidSignature.
func ResolveSigner(ctx context.Context, store ledger.VerifierStore, signingKey domain.Address) (*models.Verifier, error) {
	account, err := store.AccountForKey(ctx, signingKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidSignature, "signer is not a registered verifier key")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve signing key")
	}
	v, err := findVerifier(ctx, store, account)
	if err != nil {
		return nil, err
	}
	if v == nil || v.SigningKey != signingKey {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "signer does not match the verifier's signing key")
	}
	return v, nil
}

// findVerifier returns nil, nil when account has no record.
func findVerifier(ctx context.Context, store ledger.VerifierStore, account domain.Address) (*models.Verifier, error) {
	v, err := store.FindByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verifier")
	}
	if !v.Exists() {
		return nil, nil
	}
	return v, nil
}

func ensureKeyAvailable(ctx context.Context, store ledger.VerifierStore, signingKey, account domain.Address) error {
	bound, err := store.AccountForKey(ctx, signingKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read signing key index")
	}
	if bound != account {
		return dErrors.New(dErrors.CodeAlreadyExists, "signing key is bound to another verifier")
	}
	return nil
}

func validateRecord(v models.Verifier) error {
	switch {
	case v.Account.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "account must not be the zero address")
	case v.SigningKey.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "signing key must not be the zero address")
	case v.Name.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "name must not be empty")
	}
	return nil
}

func adjustCount(ctx context.Context, counters ledger.Counters, delta int) (uint64, error) {
	count, err := counters.Get(ctx, ledger.CounterVerifiers)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verifier count")
	}
	switch {
	case delta > 0:
		count++
	case count == 0:
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "verifier count underflow")
	default:
		count--
	}
	if err := counters.Set(ctx, ledger.CounterVerifiers, count); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write verifier count")
	}
	return count, nil
}

func emit(ctx context.Context, events outbox.Appender, eventType string, v models.Verifier) error {
	now := requesttime.Now(ctx)
	payload, err := models.NewVerifierEvent(eventType, v, now.Unix())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verifier event")
	}
	entry := outbox.NewEntry(outbox.AggregateVerifier, v.Account.Hex(), eventType, payload, now)
	if err := events.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to queue %s event", eventType))
	}
	return nil
}
