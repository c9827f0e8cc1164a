package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vcregistry/internal/directory/models"
	"vcregistry/internal/platform/database"
	"vcregistry/pkg/domain"
	"vcregistry/pkg/platform/sentinel"
)

// PostgresStore persists verifiers in PostgreSQL. It is built on the
// transaction handed out by the postgres ledger.
type PostgresStore struct {
	db database.DBTX
}

// NewPostgres constructs a PostgreSQL-backed verifier store.
func NewPostgres(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByAccount(ctx context.Context, account domain.Address) (*models.Verifier, error) {
	var (
		name       []byte
		signingKey string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, signing_key FROM verifiers WHERE account = $1
	`, account.Hex()).Scan(&name, &signingKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verifier: %w", err)
	}

	v := &models.Verifier{Account: account}
	copy(v.Name[:], name)
	if v.SigningKey, err = domain.ParseAddress(signingKey); err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) Save(ctx context.Context, v *models.Verifier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifiers (account, name, signing_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (account) DO UPDATE SET
			name = EXCLUDED.name,
			signing_key = EXCLUDED.signing_key,
			updated_at = NOW()
	`, v.Account.Hex(), v.Name[:], v.SigningKey.Hex())
	if err != nil {
		return fmt.Errorf("save verifier: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, account domain.Address) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verifiers WHERE account = $1`, account.Hex())
	if err != nil {
		return fmt.Errorf("delete verifier: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) AccountForKey(ctx context.Context, signingKey domain.Address) (domain.Address, error) {
	var account string
	err := s.db.QueryRowContext(ctx, `
		SELECT account FROM verifier_signing_keys WHERE signing_key = $1
	`, signingKey.Hex()).Scan(&account)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Address{}, sentinel.ErrNotFound
		}
		return domain.Address{}, fmt.Errorf("resolve signing key: %w", err)
	}
	return domain.ParseAddress(account)
}

func (s *PostgresStore) BindKey(ctx context.Context, signingKey, account domain.Address) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifier_signing_keys (signing_key, account)
		VALUES ($1, $2)
		ON CONFLICT (signing_key) DO UPDATE SET account = EXCLUDED.account
	`, signingKey.Hex(), account.Hex())
	if err != nil {
		return fmt.Errorf("bind signing key: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnbindKey(ctx context.Context, signingKey domain.Address) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM verifier_signing_keys WHERE signing_key = $1`, signingKey.Hex()); err != nil {
		return fmt.Errorf("unbind signing key: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
