// Package typeddata builds and verifies EIP-712 signatures over verification claims.
//
// A claim is signed under a domain that binds a scheme name and version to one
// deployment (chain id and verifying contract), so a signature produced for one
// registry cannot be replayed against another.
package typeddata

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"vcregistry/internal/attestation/models"
	"vcregistry/pkg/domain"
)

const (
	SchemeName    = "VerificationRegistry"
	SchemeVersion = "1"
	PrimaryType   = "VerificationClaim"
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrUnrecoverable      = errors.New("signature does not recover to a key")
)

// Types is the EIP-712 type set. The claim field order is part of the hash.
var Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "subject", Type: "address"},
		{Name: "expirationTime", Type: "uint256"},
	},
}

// Domain identifies the deployment a signature is valid for.
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           uint64         `json:"chainId"`
	VerifyingContract domain.Address `json:"verifyingContract"`
}

// NewDomain returns the registry domain for a deployment.
func NewDomain(chainID uint64, verifyingContract domain.Address) Domain {
	return Domain{
		Name:              SchemeName,
		Version:           SchemeVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// TypedData returns the full EIP-712 document for c, in the shape wallets
// accept for eth_signTypedData_v4.
func (d Domain) TypedData(c models.Claim) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       Types,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Common().Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"subject":        c.Subject.Common().Hex(),
			"expirationTime": strconv.FormatUint(c.ExpirationTime, 10),
		},
	}
}

// Digest returns keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(claim)).
func (d Domain) Digest(c models.Claim) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(d.TypedData(c))
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// RecoverSigner returns the address of the key that produced sig over digest.
// sig is r‖s‖v with v in {0,1} or {27,28}. High-s signatures are rejected so
// each claim has exactly one accepted encoding.
func RecoverSigner(digest common.Hash, sig []byte) (domain.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return domain.Address{}, ErrMalformedSignature
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	v := normalized[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return domain.Address{}, ErrMalformedSignature
	}
	normalized[crypto.RecoveryIDOffset] = v

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return domain.Address{}, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	return domain.Address(crypto.PubkeyToAddress(*pub)), nil
}

// Sign produces a wallet-style signature (v in {27,28}) over c. Used by the
// token tool and tests; the registry itself never holds verifier keys.
func Sign(key *ecdsa.PrivateKey, d Domain, c models.Claim) ([]byte, error) {
	digest, err := d.Digest(c)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign claim: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
