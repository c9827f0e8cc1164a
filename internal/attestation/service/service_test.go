package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"

	"vcregistry/internal/attestation/models"
	"vcregistry/internal/attestation/typeddata"
	dirmodels "vcregistry/internal/directory/models"
	directory "vcregistry/internal/directory/service"
	ledgermemory "vcregistry/internal/ledger/memory"
	"vcregistry/pkg/domain"
	dErrors "vcregistry/pkg/domain-errors"
	"vcregistry/pkg/platform/middleware/requesttime"
	"vcregistry/pkg/platform/outbox"
	outboxmemory "vcregistry/pkg/platform/outbox/store/memory"
)

const start = int64(1_700_000_000)

var (
	owner    = addr("0x00000000000000000000000000000000000000aa")
	accountV = addr("0x1000000000000000000000000000000000000001")
	accountW = addr("0x1000000000000000000000000000000000000002")
	subjectS = addr("0x3000000000000000000000000000000000000001")
	subjectT = addr("0x3000000000000000000000000000000000000002")
	contract = addr("0x4000000000000000000000000000000000000001")
)

func addr(s string) domain.Address {
	return domain.Address(common.HexToAddress(s))
}

func mustKey(hexKey string) *ecdsa.PrivateKey {
	k, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		panic(err)
	}
	return k
}

func keyAddress(k *ecdsa.PrivateKey) domain.Address {
	return domain.Address(crypto.PubkeyToAddress(k.PublicKey))
}

type RegistryServiceSuite struct {
	suite.Suite
	events    *outboxmemory.Store
	directory *directory.Service
	svc       *Service
	domain    typeddata.Domain

	keyV     *ecdsa.PrivateKey
	keyW     *ecdsa.PrivateKey
	keyStray *ecdsa.PrivateKey
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.keyV = mustKey("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	s.keyW = mustKey("8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a")
	s.keyStray = mustKey("289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.events = outboxmemory.New()
	l := ledgermemory.New(s.events)
	s.domain = typeddata.NewDomain(1337, contract)
	s.directory = directory.New(l, owner, directory.WithLogger(logger))
	s.svc = New(l, s.domain, WithLogger(logger))

	s.addVerifier(accountV, keyAddress(s.keyV), "Org")
	s.addVerifier(accountW, keyAddress(s.keyW), "Other Org")
}

func (s *RegistryServiceSuite) addVerifier(account, key domain.Address, name string) {
	l, err := domain.ParseLabel(name)
	s.Require().NoError(err)
	_, err = s.directory.AddVerifier(context.Background(), owner, dirmodels.Verifier{Account: account, Name: l, SigningKey: key})
	s.Require().NoError(err)
}

func (s *RegistryServiceSuite) at(offset int64) context.Context {
	return requesttime.WithTime(context.Background(), time.Unix(start+offset, 0))
}

func (s *RegistryServiceSuite) sign(key *ecdsa.PrivateKey, claim models.Claim) []byte {
	sig, err := typeddata.Sign(key, s.domain, claim)
	s.Require().NoError(err)
	return sig
}

func (s *RegistryServiceSuite) register(ctx context.Context, caller domain.Address, key *ecdsa.PrivateKey, claim models.Claim) (*models.Verification, error) {
	return s.svc.RegisterVerification(ctx, caller, claim, s.sign(key, claim))
}

func (s *RegistryServiceSuite) eventTypes() []string {
	var types []string
	for _, e := range s.events.All() {
		if e.AggregateType == outbox.AggregateVerification {
			types = append(types, e.EventType)
		}
	}
	return types
}

func (s *RegistryServiceSuite) count() uint64 {
	n, err := s.svc.VerificationCount(context.Background())
	s.Require().NoError(err)
	return n
}

func (s *RegistryServiceSuite) TestRegisterRevokeScenario() {
	ctx := s.at(0)
	claim := models.Claim{Subject: subjectS, ExpirationTime: uint64(start + 600)}

	rec, err := s.register(ctx, accountV, s.keyV, claim)
	s.Require().NoError(err)
	s.Equal(accountV, rec.Verifier)
	s.Equal(subjectS, rec.Subject)
	s.Equal(uint64(start), rec.IssueTime)
	s.False(rec.Revoked)
	s.Equal(models.DeriveID(accountV, subjectS, uint64(start), claim.ExpirationTime, 0), rec.UUID)
	s.Equal(uint64(1), s.count())

	verified, err := s.svc.IsVerified(ctx, subjectS)
	s.Require().NoError(err)
	s.True(verified)

	_, err = s.svc.RevokeVerification(ctx, accountW, rec.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized), "another verifier cannot revoke")

	revoked, err := s.svc.RevokeVerification(ctx, accountV, rec.UUID)
	s.Require().NoError(err)
	s.True(revoked.Revoked)

	verified, err = s.svc.IsVerified(ctx, subjectS)
	s.Require().NoError(err)
	s.False(verified)

	again, err := s.svc.RevokeVerification(ctx, accountV, rec.UUID)
	s.Require().NoError(err, "double revoke is not an error")
	s.True(again.Revoked)

	s.Equal([]string{
		models.EventVerificationRegistered,
		models.EventVerificationRevoked,
		models.EventVerificationRevoked,
	}, s.eventTypes())
}

func (s *RegistryServiceSuite) TestRegisterRejections() {
	future := uint64(start + 600)
	good := models.Claim{Subject: subjectS, ExpirationTime: future}

	highS := s.sign(s.keyV, good)
	n := crypto.S256().Params().N
	sVal := new(big.Int).SetBytes(highS[32:64])
	copy(highS[32:64], common.LeftPadBytes(new(big.Int).Sub(n, sVal).Bytes(), 32))
	highS[64] = 27 + (28 - highS[64])

	cases := []struct {
		name   string
		caller domain.Address
		claim  models.Claim
		sig    []byte
		code   dErrors.Code
	}{
		{"caller is not a verifier", subjectT, good, s.sign(s.keyV, good), dErrors.CodeNotAuthorized},
		{"null subject", accountV, models.Claim{ExpirationTime: future}, s.sign(s.keyV, models.Claim{ExpirationTime: future}), dErrors.CodeInvalidInput},
		{"signer not mapped to any verifier", accountV, good, s.sign(s.keyStray, good), dErrors.CodeInvalidSignature},
		{"signature over a different claim", accountV, good, s.sign(s.keyStray, models.Claim{Subject: subjectT, ExpirationTime: future}), dErrors.CodeInvalidSignature},
		{"truncated signature", accountV, good, s.sign(s.keyV, good)[:64], dErrors.CodeInvalidSignature},
		{"high-s signature", accountV, good, highS, dErrors.CodeInvalidSignature},
		{"expiration equal to now", accountV, models.Claim{Subject: subjectS, ExpirationTime: uint64(start)}, s.sign(s.keyV, models.Claim{Subject: subjectS, ExpirationTime: uint64(start)}), dErrors.CodeExpired},
		{"expiration in the past", accountV, models.Claim{Subject: subjectS, ExpirationTime: uint64(start - 1)}, s.sign(s.keyV, models.Claim{Subject: subjectS, ExpirationTime: uint64(start - 1)}), dErrors.CodeExpired},
		{"signed by another verifier", accountV, good, s.sign(s.keyW, good), dErrors.CodeNotAuthorized},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.svc.RegisterVerification(s.at(0), tc.caller, tc.claim, tc.sig)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	s.Zero(s.count(), "no rejected registration increments the counter")
	s.Empty(s.eventTypes())
	list, err := s.svc.VerificationsForSubject(s.at(0), subjectS)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *RegistryServiceSuite) TestRegisterWithRotatedKey() {
	claim := models.Claim{Subject: subjectS, ExpirationTime: uint64(start + 600)}
	oldSig := s.sign(s.keyV, claim)

	l, err := domain.ParseLabel("Org")
	s.Require().NoError(err)
	_, err = s.directory.UpdateVerifier(context.Background(), owner, dirmodels.Verifier{
		Account: accountV, Name: l, SigningKey: keyAddress(s.keyStray),
	})
	s.Require().NoError(err)

	_, err = s.svc.RegisterVerification(s.at(0), accountV, claim, oldSig)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature), "retired key no longer resolves")

	_, err = s.register(s.at(0), accountV, s.keyStray, claim)
	s.Require().NoError(err)
}

func (s *RegistryServiceSuite) TestIdenticalClaimsGetDistinctIDs() {
	ctx := s.at(0)
	claim := models.Claim{Subject: subjectS, ExpirationTime: uint64(start + 600)}

	first, err := s.register(ctx, accountV, s.keyV, claim)
	s.Require().NoError(err)
	second, err := s.register(ctx, accountV, s.keyV, claim)
	s.Require().NoError(err)

	s.NotEqual(first.UUID, second.UUID)
	s.Equal(models.DeriveID(accountV, subjectS, uint64(start), claim.ExpirationTime, 1), second.UUID)
	s.Equal(uint64(2), s.count())

	list, err := s.svc.VerificationsForVerifier(ctx, accountV)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.UUID, list[0].UUID)
	s.Equal(second.UUID, list[1].UUID)
}

func (s *RegistryServiceSuite) TestIsVerifiedIsAnOrOverRecords() {
	short, err := s.register(s.at(0), accountV, s.keyV, models.Claim{Subject: subjectS, ExpirationTime: uint64(start + 10)})
	s.Require().NoError(err)
	_, err = s.register(s.at(0), accountW, s.keyW, models.Claim{Subject: subjectS, ExpirationTime: uint64(start + 1000)})
	s.Require().NoError(err)

	verified, err := s.svc.IsVerified(s.at(100), subjectS)
	s.Require().NoError(err)
	s.True(verified, "one expired and one valid record is verified")

	got, err := s.svc.GetVerification(s.at(100), short.UUID)
	s.Require().NoError(err)
	s.True(got.Exists(), "expired records stay queryable")
	s.False(got.IsValid(uint64(start + 100)))

	verified, err = s.svc.IsVerified(s.at(1000), subjectS)
	s.Require().NoError(err)
	s.False(verified, "expiry is exclusive")

	verified, err = s.svc.IsVerified(s.at(0), subjectT)
	s.Require().NoError(err)
	s.False(verified, "empty index")

	_, err = s.svc.IsVerified(s.at(0), domain.Address{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *RegistryServiceSuite) TestRemoveVerification() {
	ctx := s.at(0)
	claim := models.Claim{Subject: subjectS, ExpirationTime: uint64(start + 600)}
	rec, err := s.register(ctx, accountV, s.keyV, claim)
	s.Require().NoError(err)
	kept, err := s.register(ctx, accountV, s.keyV, claim)
	s.Require().NoError(err)

	err = s.svc.RemoveVerification(ctx, accountW, rec.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

	s.Require().NoError(s.svc.RemoveVerification(ctx, accountV, rec.UUID))

	got, err := s.svc.GetVerification(ctx, rec.UUID)
	s.Require().NoError(err)
	s.Equal(models.Verification{}, got, "removed ids resolve to the zero record")

	_, found, err := s.svc.LookupVerification(ctx, rec.UUID)
	s.Require().NoError(err)
	s.False(found)

	_, found, err = s.svc.LookupVerification(ctx, kept.UUID)
	s.Require().NoError(err)
	s.True(found)

	list, err := s.svc.VerificationsForSubject(ctx, subjectS)
	s.Require().NoError(err)
	s.Require().Len(list, 2, "stale id stays in the subject index")
	s.False(list[0].Exists())
	s.Equal(kept.UUID, list[1].UUID)

	s.Equal(uint64(2), s.count(), "removal does not decrement the counter")

	err = s.svc.RemoveVerification(ctx, accountV, rec.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized), "removed is terminal")
	_, err = s.svc.RevokeVerification(ctx, accountV, rec.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

	entries := s.events.All()
	last := entries[len(entries)-1]
	s.Equal(models.EventVerificationRemoved, last.EventType)
	s.Equal(rec.UUID.String(), last.AggregateID)
	var payload models.VerificationEvent
	s.Require().NoError(json.Unmarshal(last.Payload, &payload))
	s.Nil(payload.Subject, "removal events carry only the identifier")
}

func (s *RegistryServiceSuite) TestRemovedVerifierLosesMutationRights() {
	ctx := s.at(0)
	rec, err := s.register(ctx, accountV, s.keyV, models.Claim{Subject: subjectS, ExpirationTime: uint64(start + 600)})
	s.Require().NoError(err)

	s.Require().NoError(s.directory.RemoveVerifier(context.Background(), owner, accountV))

	_, err = s.svc.RevokeVerification(ctx, accountV, rec.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

	verified, err := s.svc.IsVerified(ctx, subjectS)
	s.Require().NoError(err)
	s.True(verified, "records outlive their verifier")
}

func (s *RegistryServiceSuite) TestUnknownIDResolvesToZero() {
	var id domain.VerificationID
	id[0] = 0x42

	got, err := s.svc.GetVerification(s.at(0), id)
	s.Require().NoError(err)
	s.False(got.Exists())

	_, err = s.svc.VerificationsForVerifier(s.at(0), domain.Address{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	_, err = s.svc.VerificationsForSubject(s.at(0), domain.Address{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
