package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"vcregistry/internal/directory/models"
	"vcregistry/internal/ledger"
	ledgermemory "vcregistry/internal/ledger/memory"
	"vcregistry/pkg/domain"
	dErrors "vcregistry/pkg/domain-errors"
	"vcregistry/pkg/platform/middleware/requesttime"
	outboxmemory "vcregistry/pkg/platform/outbox/store/memory"
	"vcregistry/pkg/testutil"
)

var (
	owner    = addr("0x00000000000000000000000000000000000000aa")
	stranger = addr("0x00000000000000000000000000000000000000bb")
	account1 = addr("0x1000000000000000000000000000000000000001")
	account2 = addr("0x1000000000000000000000000000000000000002")
	key1     = addr("0x2000000000000000000000000000000000000001")
	key2     = addr("0x2000000000000000000000000000000000000002")
)

func addr(s string) domain.Address {
	return domain.Address(common.HexToAddress(s))
}

func label(s string) domain.Label {
	l, err := domain.ParseLabel(s)
	if err != nil {
		panic(err)
	}
	return l
}

type DirectoryServiceSuite struct {
	suite.Suite
	ctx    context.Context
	events *outboxmemory.Store
	ledger *ledgermemory.Ledger
	svc    *Service
}

func TestDirectoryServiceSuite(t *testing.T) {
	suite.Run(t, new(DirectoryServiceSuite))
}

func (s *DirectoryServiceSuite) SetupTest() {
	s.ctx = requesttime.WithTime(context.Background(), time.Unix(1_700_000_000, 0))
	s.events = outboxmemory.New()
	s.ledger = ledgermemory.New(s.events)
	s.svc = New(s.ledger, owner, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *DirectoryServiceSuite) record(account, key domain.Address, name string) models.Verifier {
	return models.Verifier{Account: account, Name: label(name), SigningKey: key}
}

func (s *DirectoryServiceSuite) mustAdd(account, key domain.Address, name string) {
	_, err := s.svc.AddVerifier(s.ctx, owner, s.record(account, key, name))
	s.Require().NoError(err)
}

func (s *DirectoryServiceSuite) resolve(key domain.Address) (*models.Verifier, error) {
	var v *models.Verifier
	err := s.ledger.View(s.ctx, func(tx ledger.Tx) error {
		var err error
		v, err = ResolveSigner(s.ctx, tx.Verifiers(), key)
		return err
	})
	return v, err
}

func (s *DirectoryServiceSuite) TestAddVerifier() {
	s.Run("owner adds a verifier", func() {
		v, err := s.svc.AddVerifier(s.ctx, owner, s.record(account1, key1, "Acme KYC"))
		s.Require().NoError(err)
		s.Equal(account1, v.Account)

		ok, err := s.svc.IsVerifier(s.ctx, account1)
		s.Require().NoError(err)
		s.True(ok)

		count, err := s.svc.VerifierCount(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(1), count)

		got, err := s.resolve(key1)
		s.Require().NoError(err)
		s.Equal(account1, got.Account)

		entries := s.events.All()
		s.Require().Len(entries, 1)
		s.Equal(models.EventVerifierAdded, entries[0].EventType)
		s.Equal(account1.Hex(), entries[0].AggregateID)

		var payload models.VerifierEvent
		s.Require().NoError(json.Unmarshal(entries[0].Payload, &payload))
		s.Equal("Acme KYC", payload.Name)
		s.Equal(int64(1_700_000_000), payload.OccurredAt)
	})

	s.Run("duplicate account is rejected", func() {
		_, err := s.svc.AddVerifier(s.ctx, owner, s.record(account1, key2, "Other"))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))

		count, _ := s.svc.VerifierCount(s.ctx)
		s.Equal(uint64(1), count, "count is unchanged after a failed add")
		s.Len(s.events.All(), 1, "no event for a failed add")
	})

	s.Run("signing key already bound elsewhere is rejected", func() {
		_, err := s.svc.AddVerifier(s.ctx, owner, s.record(account2, key1, "Thief"))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))

		ok, _ := s.svc.IsVerifier(s.ctx, account2)
		s.False(ok)
	})
}

// Racing adds for one signing key must bind it exactly once.
func (s *DirectoryServiceSuite) TestConcurrentAddsForSameKey() {
	const n = 20
	result := testutil.RunConcurrent(n, func(i int) error {
		account := addr(fmt.Sprintf("0x30000000000000000000000000000000000000%02x", i+1))
		_, err := s.svc.AddVerifier(s.ctx, owner, s.record(account, key1, fmt.Sprintf("Racer %d", i)))
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(n-1), result.AlreadyExists)
	s.Equal(int32(n), result.Total())

	count, err := s.svc.VerifierCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), count)
	s.Len(s.events.All(), 1)
}

func (s *DirectoryServiceSuite) TestAddVerifierRejections() {
	cases := []struct {
		name   string
		caller domain.Address
		record models.Verifier
		code   dErrors.Code
	}{
		{"non-owner caller", stranger, s.record(account1, key1, "Acme"), dErrors.CodeNotAuthorized},
		{"null caller", domain.Address{}, s.record(account1, key1, "Acme"), dErrors.CodeNotAuthorized},
		{"null account", owner, s.record(domain.Address{}, key1, "Acme"), dErrors.CodeInvalidInput},
		{"null signing key", owner, s.record(account1, domain.Address{}, "Acme"), dErrors.CodeInvalidInput},
		{"empty name", owner, s.record(account1, key1, ""), dErrors.CodeInvalidInput},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.svc.AddVerifier(s.ctx, tc.caller, tc.record)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	count, err := s.svc.VerifierCount(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)
	s.Empty(s.events.All())
}

func (s *DirectoryServiceSuite) TestUpdateVerifier() {
	s.mustAdd(account1, key1, "Acme")

	s.Run("missing verifier is not found", func() {
		_, err := s.svc.UpdateVerifier(s.ctx, owner, s.record(account2, key2, "Nobody"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-owner is rejected", func() {
		_, err := s.svc.UpdateVerifier(s.ctx, stranger, s.record(account1, key2, "Acme"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("rotating the signing key clears the old reverse entry", func() {
		_, err := s.svc.UpdateVerifier(s.ctx, owner, s.record(account1, key2, "Acme Rotated"))
		s.Require().NoError(err)

		got, err := s.svc.GetVerifier(s.ctx, account1)
		s.Require().NoError(err)
		s.Equal(key2, got.SigningKey)
		s.Equal("Acme Rotated", got.Name.String())

		_, err = s.resolve(key1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature), "old key no longer resolves")

		v, err := s.resolve(key2)
		s.Require().NoError(err)
		s.Equal(account1, v.Account)

		count, _ := s.svc.VerifierCount(s.ctx)
		s.Equal(uint64(1), count, "update does not change the count")

		entries := s.events.All()
		s.Equal(models.EventVerifierUpdated, entries[len(entries)-1].EventType)
	})

	s.Run("keeping the same key is allowed", func() {
		_, err := s.svc.UpdateVerifier(s.ctx, owner, s.record(account1, key2, "Acme Again"))
		s.Require().NoError(err)
		v, err := s.resolve(key2)
		s.Require().NoError(err)
		s.Equal(account1, v.Account)
	})
}

func (s *DirectoryServiceSuite) TestRemoveVerifier() {
	s.mustAdd(account1, key1, "Acme")
	s.mustAdd(account2, key2, "Beta")

	s.Run("non-owner is rejected", func() {
		err := s.svc.RemoveVerifier(s.ctx, stranger, account1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("owner removes a verifier", func() {
		s.Require().NoError(s.svc.RemoveVerifier(s.ctx, owner, account1))

		ok, _ := s.svc.IsVerifier(s.ctx, account1)
		s.False(ok)

		count, _ := s.svc.VerifierCount(s.ctx)
		s.Equal(uint64(1), count)

		_, err := s.svc.GetVerifier(s.ctx, account1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = s.resolve(key1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))

		entries := s.events.All()
		last := entries[len(entries)-1]
		s.Equal(models.EventVerifierRemoved, last.EventType)
		var payload models.VerifierEvent
		s.Require().NoError(json.Unmarshal(last.Payload, &payload))
		s.Equal(key1, payload.SigningKey, "removal event carries the prior record")
	})

	s.Run("removing twice is not found", func() {
		err := s.svc.RemoveVerifier(s.ctx, owner, account1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("a removed account can be re-added", func() {
		s.mustAdd(account1, key1, "Acme Returns")
		count, _ := s.svc.VerifierCount(s.ctx)
		s.Equal(uint64(2), count)
	})
}

func (s *DirectoryServiceSuite) TestRequireVerifier() {
	s.mustAdd(account1, key1, "Acme")

	err := s.ledger.View(s.ctx, func(tx ledger.Tx) error {
		v, err := RequireVerifier(s.ctx, tx.Verifiers(), account1)
		s.Require().NoError(err)
		s.Equal(key1, v.SigningKey)

		_, err = RequireVerifier(s.ctx, tx.Verifiers(), stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
		return nil
	})
	s.Require().NoError(err)
}

func TestGetVerifierUnknownAccount(t *testing.T) {
	svc := New(ledgermemory.New(outboxmemory.New()), owner)

	_, err := svc.GetVerifier(context.Background(), account1)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	ok, err := svc.IsVerifier(context.Background(), account1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, owner, svc.Owner())
}
