package models

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"

	"vcregistry/pkg/domain"
)

var (
	verifier = domain.Address(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	subject  = domain.Address(common.HexToAddress("0x2222222222222222222222222222222222222222"))
)

func TestDeriveIDMatchesPackedKeccak(t *testing.T) {
	// Independent encoding: abi.encodePacked(address, address, uint256, uint256, uint256).
	packed := append([]byte{}, verifier.Bytes()...)
	packed = append(packed, subject.Bytes()...)
	packed = append(packed, common.LeftPadBytes([]byte{0x64}, 32)...)       // 100
	packed = append(packed, common.LeftPadBytes([]byte{0x01, 0x2c}, 32)...) // 300
	packed = append(packed, common.LeftPadBytes([]byte{0x07}, 32)...)       // 7
	want := crypto.Keccak256Hash(packed)

	got := DeriveID(verifier, subject, 100, 300, 7)
	assert.Equal(t, domain.VerificationID(want), got)
}

func TestDeriveIDDependsOnSequence(t *testing.T) {
	a := DeriveID(verifier, subject, 100, 300, 0)
	b := DeriveID(verifier, subject, 100, 300, 1)
	assert.NotEqual(t, a, b, "identical claims in the same second get distinct ids")
	assert.Equal(t, a, DeriveID(verifier, subject, 100, 300, 0), "derivation is deterministic")
}

func TestIsValid(t *testing.T) {
	v := Verification{UUID: DeriveID(verifier, subject, 100, 300, 0), ExpirationTime: 300}

	assert.True(t, v.IsValid(299))
	assert.False(t, v.IsValid(300), "expiry is exclusive")

	v.Revoked = true
	assert.False(t, v.IsValid(100))

	assert.False(t, Verification{}.IsValid(0), "absent record is never valid")
	assert.False(t, Verification{}.Exists())
}
