// Package service implements the verification registry: signed claim
// registration, revocation, removal and the subject and verifier indexes.
//
// Every operation runs as one ledger unit of work and reads the clock exactly
// once, from the request context.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"vcregistry/internal/attestation/metrics"
	"vcregistry/internal/attestation/models"
	"vcregistry/internal/attestation/typeddata"
	directory "vcregistry/internal/directory/service"
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
	opRegister = "register"
	opRevoke   = "revoke"
	opRemove   = "remove"
)

type Option func(*Service)

// Service owns verification records and their indexes.
type Service struct {
	ledger  ledger.Ledger
	domain  typeddata.Domain
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// New creates a registry that accepts claims signed under d.
func New(l ledger.Ledger, d typeddata.Domain, opts ...Option) *Service {
	svc := &Service{
		ledger: l,
		domain: d,
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

// Domain returns the typed-data domain claims must be signed under.
func (s *Service) Domain() typeddata.Domain {
	return s.domain
}

// RegisterVerification records a claim signed by the calling verifier's
// signing key. Checks run in a fixed order so a request failing several of
// them always gets the same error:
//
//  1. caller is a registered verifier (NotAuthorized)
//  2. subject is not the null identity and the expiry fits a signed
//     64-bit timestamp (InvalidInput)
//  3. signature recovers to a key (InvalidSignature)
//  4. the key resolves to a verifier that still lists it (InvalidSignature)
//  5. the claim expires after now (Expired)
//  6. the resolved verifier is the caller (NotAuthorized)
func (s *Service) RegisterVerification(ctx context.Context, caller domain.Address, claim models.Claim, signature []byte) (_ *models.Verification, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRegisterVerification,
		tracer.String(tracer.AttrCaller, caller.Hex()),
		tracer.String(tracer.AttrSubject, claim.Subject.Hex()),
	)
	defer func() {
		s.observe(ctx, opRegister, err)
		span.End(err)
	}()

	now := requesttime.Unix(ctx)

	var (
		record models.Verification
		count  uint64
	)
	err = s.ledger.Update(ctx, func(tx ledger.Tx) error {
		if _, err := directory.RequireVerifier(ctx, tx.Verifiers(), caller); err != nil {
			return err
		}
		if claim.Subject.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "subject must not be the zero address")
		}
		if claim.ExpirationTime > math.MaxInt64 {
			return dErrors.New(dErrors.CodeInvalidInput, "expiration time out of range")
		}

		signer, err := s.recoverSigner(claim, signature)
		if err != nil {
			return err
		}
		span.AddEvent(tracer.EventSignerRecovered, tracer.String(tracer.AttrSigner, signer.Hex()))

		verifier, err := directory.ResolveSigner(ctx, tx.Verifiers(), signer)
		if err != nil {
			return err
		}
		if claim.ExpirationTime <= now {
			return dErrors.New(dErrors.CodeExpired, "claim expiration time is not in the future")
		}
		if verifier.Account != caller {
			return dErrors.New(dErrors.CodeNotAuthorized, "claim was signed for a different verifier")
		}

		seq, err := tx.Counters().Get(ctx, ledger.CounterVerifications)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification count")
		}
		record = models.Verification{
			UUID:           models.DeriveID(caller, claim.Subject, now, claim.ExpirationTime, seq),
			Verifier:       caller,
			Subject:        claim.Subject,
			IssueTime:      now,
			ExpirationTime: claim.ExpirationTime,
		}

		store := tx.Verifications()
		if existing, err := findVerification(ctx, store, record.UUID); err != nil {
			return err
		} else if existing.Exists() {
			return dErrors.New(dErrors.CodeInvariantViolation, "derived verification id already in use")
		}
		if err := store.Save(ctx, &record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verification")
		}
		if err := store.AppendToSubject(ctx, record.Subject, record.UUID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index verification by subject")
		}
		if err := store.AppendToVerifier(ctx, record.Verifier, record.UUID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index verification by verifier")
		}
		count = seq + 1
		if err := tx.Counters().Set(ctx, ledger.CounterVerifications, count); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write verification count")
		}
		return emitRecord(ctx, tx.Events(), models.EventVerificationRegistered, record, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "verification registered",
		"request_id", requestcontext.RequestID(ctx),
		"uuid", record.UUID.String(),
		"verifier", record.Verifier.Hex(),
		"subject", record.Subject.Hex(),
		"expiration_time", record.ExpirationTime,
	)
	if s.metrics != nil {
		s.metrics.Registered.Inc()
		s.metrics.VerificationsTotal.Set(float64(count))
	}
	return &record, nil
}

// RevokeVerification marks the record revoked. Revoking an already revoked
// record succeeds and emits another event.
func (s *Service) RevokeVerification(ctx context.Context, caller domain.Address, id domain.VerificationID) (_ *models.Verification, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRevokeVerification,
		tracer.String(tracer.AttrCaller, caller.Hex()),
		tracer.String(tracer.AttrUUID, id.String()),
	)
	defer func() {
		s.observe(ctx, opRevoke, err)
		span.End(err)
	}()

	now := requesttime.Unix(ctx)

	var record models.Verification
	err = s.ledger.Update(ctx, func(tx ledger.Tx) error {
		existing, err := requireRecordedVerifier(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		existing.Revoked = true
		if err := tx.Verifications().Save(ctx, &existing); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verification")
		}
		record = existing
		return emitRecord(ctx, tx.Events(), models.EventVerificationRevoked, record, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "verification revoked",
		"request_id", requestcontext.RequestID(ctx),
		"uuid", id.String(),
		"verifier", caller.Hex(),
	)
	if s.metrics != nil {
		s.metrics.Revoked.Inc()
	}
	return &record, nil
}

// RemoveVerification deletes the record. Its id stays in the subject and
// verifier sequences and resolves to the zero record from then on.
func (s *Service) RemoveVerification(ctx context.Context, caller domain.Address, id domain.VerificationID) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRemoveVerification,
		tracer.String(tracer.AttrCaller, caller.Hex()),
		tracer.String(tracer.AttrUUID, id.String()),
	)
	defer func() {
		s.observe(ctx, opRemove, err)
		span.End(err)
	}()

	now := requesttime.Unix(ctx)

	err = s.ledger.Update(ctx, func(tx ledger.Tx) error {
		if _, err := requireRecordedVerifier(ctx, tx, caller, id); err != nil {
			return err
		}
		if err := tx.Verifications().Delete(ctx, id); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete verification")
		}
		payload, err := models.NewRemovalEvent(id, caller, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verification event")
		}
		return appendEvent(ctx, tx.Events(), id, models.EventVerificationRemoved, payload)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "verification removed",
		"request_id", requestcontext.RequestID(ctx),
		"uuid", id.String(),
		"verifier", caller.Hex(),
	)
	if s.metrics != nil {
		s.metrics.Removed.Inc()
	}
	return nil
}

// VerificationCount returns the number of verifications ever registered.
// Removal does not decrement it.
func (s *Service) VerificationCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		var err error
		count, err = tx.Counters().Get(ctx, ledger.CounterVerifications)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification count")
		}
		return nil
	})
	return count, err
}

// IsVerified reports whether any of subject's verifications is currently
// valid.
func (s *Service) IsVerified(ctx context.Context, subject domain.Address) (verified bool, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIsVerified,
		tracer.String(tracer.AttrSubject, subject.Hex()),
	)
	defer func() {
		span.SetAttributes(tracer.Bool(tracer.AttrIsVerified, verified))
		span.End(err)
	}()

	if subject.IsNil() {
		return false, dErrors.New(dErrors.CodeInvalidInput, "subject must not be the zero address")
	}
	now := requesttime.Unix(ctx)

	err = s.ledger.View(ctx, func(tx ledger.Tx) error {
		ids, err := tx.Verifications().SubjectSequence(ctx, subject)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read subject index")
		}
		if s.metrics != nil {
			s.metrics.SubjectIndexSize.Observe(float64(len(ids)))
		}
		for _, id := range ids {
			v, err := findVerification(ctx, tx.Verifications(), id)
			if err != nil {
				return err
			}
			if v.IsValid(now) {
				verified = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveVerifiedCheck(verified)
	}
	return verified, nil
}

// GetVerification returns the record for id, or the zero record when id is
// unknown or was removed.
func (s *Service) GetVerification(ctx context.Context, id domain.VerificationID) (models.Verification, error) {
	v, _, err := s.LookupVerification(ctx, id)
	return v, err
}

// LookupVerification is GetVerification with an explicit found flag.
func (s *Service) LookupVerification(ctx context.Context, id domain.VerificationID) (models.Verification, bool, error) {
	var v models.Verification
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		var err error
		v, err = findVerification(ctx, tx.Verifications(), id)
		return err
	})
	if err != nil {
		return models.Verification{}, false, err
	}
	return v, v.Exists(), nil
}

// VerificationsForSubject resolves subject's sequence in insertion order.
// Removed records appear as zero records.
func (s *Service) VerificationsForSubject(ctx context.Context, subject domain.Address) ([]models.Verification, error) {
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject must not be the zero address")
	}
	return s.resolveSequence(ctx, func(tx ledger.Tx) ([]domain.VerificationID, error) {
		return tx.Verifications().SubjectSequence(ctx, subject)
	})
}

// VerificationsForVerifier resolves verifier's sequence in insertion order.
// Removed records appear as zero records.
func (s *Service) VerificationsForVerifier(ctx context.Context, verifier domain.Address) ([]models.Verification, error) {
	if verifier.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verifier must not be the zero address")
	}
	return s.resolveSequence(ctx, func(tx ledger.Tx) ([]domain.VerificationID, error) {
		return tx.Verifications().VerifierSequence(ctx, verifier)
	})
}

func (s *Service) resolveSequence(ctx context.Context, sequence func(tx ledger.Tx) ([]domain.VerificationID, error)) ([]models.Verification, error) {
	var out []models.Verification
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		ids, err := sequence(tx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification index")
		}
		out = make([]models.Verification, 0, len(ids))
		for _, id := range ids {
			v, err := findVerification(ctx, tx.Verifications(), id)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) recoverSigner(claim models.Claim, signature []byte) (domain.Address, error) {
	digest, err := s.domain.Digest(claim)
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash claim")
	}
	signer, err := typeddata.RecoverSigner(digest, signature)
	if s.metrics != nil {
		s.metrics.ObserveSignatureRecovery(err == nil)
	}
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "signature could not be recovered")
	}
	return signer, nil
}

func (s *Service) observe(ctx context.Context, operation string, err error) {
	if err == nil {
		return
	}
	code := dErrors.CodeOf(err)
	if s.metrics != nil {
		s.metrics.IncrementRejected(operation, string(code))
	}
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		s.logger.ErrorContext(ctx, "registry mutation failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", operation,
			"error", err,
		)
		return
	}
	s.logger.DebugContext(ctx, "registry mutation rejected",
		"request_id", requestcontext.RequestID(ctx),
		"operation", operation,
		"code", code,
	)
}

// requireRecordedVerifier loads id and checks that caller is a registered
// verifier and the one recorded on it. Unknown ids fail the same way as a
// foreign record since the zero record names no verifier.
func requireRecordedVerifier(ctx context.Context, tx ledger.Tx, caller domain.Address, id domain.VerificationID) (models.Verification, error) {
	if _, err := directory.RequireVerifier(ctx, tx.Verifiers(), caller); err != nil {
		return models.Verification{}, err
	}
	existing, err := findVerification(ctx, tx.Verifications(), id)
	if err != nil {
		return models.Verification{}, err
	}
	if !existing.Exists() || existing.Verifier != caller {
		return models.Verification{}, dErrors.New(dErrors.CodeNotAuthorized, "caller is not the verifier of this record")
	}
	return existing, nil
}

// findVerification returns the zero record for unknown ids.
func findVerification(ctx context.Context, store ledger.VerificationStore, id domain.VerificationID) (models.Verification, error) {
	v, err := store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Verification{}, nil
		}
		return models.Verification{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification")
	}
	return *v, nil
}

func emitRecord(ctx context.Context, events outbox.Appender, eventType string, v models.Verification, now uint64) error {
	payload, err := models.NewRecordEvent(eventType, v, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verification event")
	}
	return appendEvent(ctx, events, v.UUID, eventType, payload)
}

func appendEvent(ctx context.Context, events outbox.Appender, id domain.VerificationID, eventType string, payload []byte) error {
	entry := outbox.NewEntry(outbox.AggregateVerification, id.String(), eventType, payload, requesttime.Now(ctx))
	if err := events.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue verification event")
	}
	return nil
}
