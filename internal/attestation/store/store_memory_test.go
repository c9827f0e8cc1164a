package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcregistry/internal/attestation/models"
	"vcregistry/internal/ledger"
	"vcregistry/pkg/domain"
	"vcregistry/pkg/platform/sentinel"
)

func record(seq uint64) *models.Verification {
	verifier, subject := domain.Address{1}, domain.Address{2}
	return &models.Verification{
		UUID:           models.DeriveID(verifier, subject, 100, 200, seq),
		Verifier:       verifier,
		Subject:        subject,
		IssueTime:      100,
		ExpirationTime: 200,
	}
}

func TestInMemoryStore_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	v := record(0)

	require.NoError(t, s.Save(ctx, v))
	got, err := s.FindByID(ctx, v.UUID)
	require.NoError(t, err)
	assert.Equal(t, *v, *got)

	got.Revoked = true
	require.NoError(t, s.Save(ctx, got))
	again, err := s.FindByID(ctx, v.UUID)
	require.NoError(t, err)
	assert.True(t, again.Revoked)

	require.NoError(t, s.Delete(ctx, v.UUID))
	_, err = s.FindByID(ctx, v.UUID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_SequencesKeepInsertionOrderAndSurviveDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	a, b := record(0), record(1)

	for _, v := range []*models.Verification{a, b} {
		require.NoError(t, s.Save(ctx, v))
		require.NoError(t, s.AppendToSubject(ctx, v.Subject, v.UUID))
		require.NoError(t, s.AppendToVerifier(ctx, v.Verifier, v.UUID))
	}
	require.NoError(t, s.Delete(ctx, a.UUID))

	subjects, err := s.SubjectSequence(ctx, a.Subject)
	require.NoError(t, err)
	assert.Equal(t, []domain.VerificationID{a.UUID, b.UUID}, subjects)

	issued, err := s.VerifierSequence(ctx, a.Verifier)
	require.NoError(t, err)
	assert.Equal(t, []domain.VerificationID{a.UUID, b.UUID}, issued)

	none, err := s.SubjectSequence(ctx, domain.Address{0x42})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStore_CloneIsolatesSequences(t *testing.T) {
	ctx := context.Background()
	base := NewInMemoryStore()
	a := record(0)
	require.NoError(t, base.AppendToSubject(ctx, a.Subject, a.UUID))
	base.Freeze()

	assert.ErrorIs(t, base.AppendToSubject(ctx, a.Subject, a.UUID), ledger.ErrReadOnly)

	first := base.Clone()
	second := base.Clone()
	require.NoError(t, first.AppendToSubject(ctx, a.Subject, record(1).UUID))
	require.NoError(t, second.AppendToSubject(ctx, a.Subject, record(2).UUID))

	fromFirst, _ := first.SubjectSequence(ctx, a.Subject)
	fromSecond, _ := second.SubjectSequence(ctx, a.Subject)
	fromBase, _ := base.SubjectSequence(ctx, a.Subject)
	assert.Equal(t, record(1).UUID, fromFirst[1])
	assert.Equal(t, record(2).UUID, fromSecond[1])
	assert.Len(t, fromBase, 1)
}
