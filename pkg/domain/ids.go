// Package domain provides the fixed-width identities shared by the directory
// and the registry so accounts, signing keys and verification ids cannot be mixed up.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	dErrors "vcregistry/pkg/domain-errors"
)

// Address is a 20-byte identity: a verifier account, a subject or a signing key.
// The zero Address is the null identity.
type Address common.Address

// VerificationID is the 32-byte deterministic identifier of an attestation.
type VerificationID common.Hash

// Label is an opaque 32-byte name. The zero Label means "absent".
type Label [32]byte

// Parse functions - use at trust boundaries (handlers, config, CLI flags).

// ParseAddress accepts a 0x-prefixed or bare 40 character hex string.
// The null address parses successfully; callers decide whether it is allowed.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !common.IsHexAddress(s) {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address: "+s)
	}
	return Address(common.HexToAddress(s)), nil
}

// ParseVerificationID accepts a 0x-prefixed 64 character hex string.
func ParseVerificationID(s string) (VerificationID, error) {
	raw, err := decodeHex(s, common.HashLength)
	if err != nil {
		return VerificationID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid verification id: "+err.Error())
	}
	return VerificationID(common.BytesToHash(raw)), nil
}

// ParseLabel accepts either a 0x-prefixed 64 character hex string or plain
// text of at most 32 bytes, which is right padded with zero bytes.
func ParseLabel(s string) (Label, error) {
	var l Label
	if strings.HasPrefix(s, "0x") && len(s) == 2+2*len(l) {
		raw, err := decodeHex(s, len(l))
		if err != nil {
			return Label{}, dErrors.New(dErrors.CodeInvalidInput, "invalid label: "+err.Error())
		}
		copy(l[:], raw)
		return l, nil
	}
	if len(s) > len(l) {
		return Label{}, dErrors.New(dErrors.CodeInvalidInput, "label exceeds 32 bytes")
	}
	copy(l[:], s)
	return l, nil
}

func decodeHex(s string, size int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 2*size {
		return nil, hex.ErrLength
	}
	return hex.DecodeString(s)
}

// Common returns the go-ethereum representation used for hashing and recovery.
func (a Address) Common() common.Address { return common.Address(a) }

// Bytes returns the raw 20 bytes.
func (a Address) Bytes() []byte { return common.Address(a).Bytes() }

// String returns the EIP-55 checksummed hex form.
func (a Address) String() string { return common.Address(a).Hex() }

// Hex returns the lower-case 0x-prefixed form used as a storage key.
func (a Address) Hex() string { return hexutil.Encode(a.Bytes()) }

// IsNil reports whether a is the null identity.
func (a Address) IsNil() bool { return a == Address{} }

func (id VerificationID) Bytes() []byte  { return common.Hash(id).Bytes() }
func (id VerificationID) String() string { return common.Hash(id).Hex() }
func (id VerificationID) IsNil() bool    { return id == VerificationID{} }

// IsNil reports whether l is the absent sentinel.
func (l Label) IsNil() bool { return l == Label{} }

// Hex returns the 0x-prefixed hex form of all 32 bytes.
func (l Label) Hex() string { return "0x" + hex.EncodeToString(l[:]) }

// String returns the label as text with trailing zero padding removed.
func (l Label) String() string { return strings.TrimRight(string(l[:]), "\x00") }

// MarshalText lets addresses travel as checksummed hex in JSON and YAML.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (id VerificationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *VerificationID) UnmarshalText(b []byte) error {
	parsed, err := ParseVerificationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
