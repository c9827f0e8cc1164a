package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"vcregistry/internal/attestation/models"
	"vcregistry/internal/platform/database"
	"vcregistry/pkg/domain"
	"vcregistry/pkg/platform/sentinel"
)

const (
	sequenceSubject  = "subject"
	sequenceVerifier = "verifier"
)

// PostgresStore persists verifications and their id sequences in PostgreSQL.
type PostgresStore struct {
	db database.DBTX
}

// NewPostgres constructs a PostgreSQL-backed verification store.
func NewPostgres(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.VerificationID) (*models.Verification, error) {
	var (
		verifier, subject     string
		issueTime, expiration int64
		revoked               bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT verifier, subject, issue_time, expiration_time, revoked
		FROM verifications WHERE uuid = $1
	`, id.String()).Scan(&verifier, &subject, &issueTime, &expiration, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification: %w", err)
	}

	v := &models.Verification{
		UUID:           id,
		IssueTime:      uint64(issueTime),  // #nosec G115 -- written from uint64 <= MaxInt64
		ExpirationTime: uint64(expiration), // #nosec G115
		Revoked:        revoked,
	}
	if v.Verifier, err = domain.ParseAddress(verifier); err != nil {
		return nil, fmt.Errorf("decode verifier: %w", err)
	}
	if v.Subject, err = domain.ParseAddress(subject); err != nil {
		return nil, fmt.Errorf("decode subject: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) Save(ctx context.Context, v *models.Verification) error {
	issue, err := toBigint(v.IssueTime)
	if err != nil {
		return err
	}
	expiration, err := toBigint(v.ExpirationTime)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verifications (uuid, verifier, subject, issue_time, expiration_time, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uuid) DO UPDATE SET revoked = EXCLUDED.revoked
	`, v.UUID.String(), v.Verifier.Hex(), v.Subject.Hex(), issue, expiration, v.Revoked)
	if err != nil {
		return fmt.Errorf("save verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.VerificationID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verifications WHERE uuid = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendToSubject(ctx context.Context, subject domain.Address, id domain.VerificationID) error {
	return s.appendTo(ctx, sequenceSubject, subject, id)
}

func (s *PostgresStore) AppendToVerifier(ctx context.Context, verifier domain.Address, id domain.VerificationID) error {
	return s.appendTo(ctx, sequenceVerifier, verifier, id)
}

func (s *PostgresStore) appendTo(ctx context.Context, kind string, owner domain.Address, id domain.VerificationID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_sequences (kind, owner, uuid) VALUES ($1, $2, $3)
	`, kind, owner.Hex(), id.String())
	if err != nil {
		return fmt.Errorf("append %s sequence: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) SubjectSequence(ctx context.Context, subject domain.Address) ([]domain.VerificationID, error) {
	return s.sequence(ctx, sequenceSubject, subject)
}

func (s *PostgresStore) VerifierSequence(ctx context.Context, verifier domain.Address) ([]domain.VerificationID, error) {
	return s.sequence(ctx, sequenceVerifier, verifier)
}

func (s *PostgresStore) sequence(ctx context.Context, kind string, owner domain.Address) ([]domain.VerificationID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid FROM verification_sequences
		WHERE kind = $1 AND owner = $2
		ORDER BY seq ASC
	`, kind, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("list %s sequence: %w", kind, err)
	}
	defer rows.Close()

	var ids []domain.VerificationID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s sequence: %w", kind, err)
		}
		id, err := domain.ParseVerificationID(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s sequence: %w", kind, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s sequence: %w", kind, err)
	}
	return ids, nil
}

func toBigint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("timestamp %d exceeds BIGINT: %w", v, sentinel.ErrInvalidInput)
	}
	return int64(v), nil
}
