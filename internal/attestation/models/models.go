package models

import (
	"encoding/binary"
	"encoding/json"

	"golang.org/x/crypto/sha3"

	"vcregistry/pkg/domain"
)

// Claim is the statement a verifier signs: subject has been verified until
// ExpirationTime (unix seconds).
type Claim struct {
	Subject        domain.Address
	ExpirationTime uint64
}

// Verification is an attestation record. The zero value stands for "absent";
// lookups of unknown or removed ids return it rather than failing.
type Verification struct {
	UUID           domain.VerificationID
	Verifier       domain.Address
	Subject        domain.Address
	IssueTime      uint64
	ExpirationTime uint64
	Revoked        bool
}

// Exists reports whether the record is stored, as opposed to the zero value
// returned for unknown ids.
func (v Verification) Exists() bool {
	return !v.UUID.IsNil()
}

// IsValid reports whether the verification is currently valid at now.
// It is never cached; revocation and expiry are read at query time.
func (v Verification) IsValid(now uint64) bool {
	return v.Exists() && !v.Revoked && v.ExpirationTime > now
}

// DeriveID computes the deterministic identifier
//
//	keccak256(verifier ‖ subject ‖ issueTime ‖ expirationTime ‖ sequence)
//
// with addresses as 20 raw bytes and integers as 32-byte big-endian words.
// sequence is the global verification counter before it is incremented.
func DeriveID(verifier, subject domain.Address, issueTime, expirationTime, sequence uint64) domain.VerificationID {
	h := sha3.NewLegacyKeccak256()
	h.Write(verifier.Bytes())
	h.Write(subject.Bytes())
	h.Write(uint256(issueTime))
	h.Write(uint256(expirationTime))
	h.Write(uint256(sequence))

	var id domain.VerificationID
	h.Sum(id[:0])
	return id
}

func uint256(v uint64) []byte {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], v)
	return word[:]
}

// Event types emitted by registry mutations.
const (
	EventVerificationRegistered = "verification_registered"
	EventVerificationRevoked    = "verification_revoked"
	EventVerificationRemoved    = "verification_removed"
)

// VerificationEvent is the payload of registry events. Removal events carry
// only the identifier and the verifier that removed it.
type VerificationEvent struct {
	Type           string                `json:"type"`
	UUID           domain.VerificationID `json:"uuid"`
	Verifier       domain.Address        `json:"verifier"`
	Subject        *domain.Address       `json:"subject,omitempty"`
	IssueTime      uint64                `json:"issue_time,omitempty"`
	ExpirationTime uint64                `json:"expiration_time,omitempty"`
	Revoked        bool                  `json:"revoked"`
	OccurredAt     uint64                `json:"occurred_at"`
}

// NewRecordEvent builds a payload carrying the full post-mutation record.
func NewRecordEvent(eventType string, v Verification, occurredAt uint64) ([]byte, error) {
	subject := v.Subject
	return json.Marshal(VerificationEvent{
		Type:           eventType,
		UUID:           v.UUID,
		Verifier:       v.Verifier,
		Subject:        &subject,
		IssueTime:      v.IssueTime,
		ExpirationTime: v.ExpirationTime,
		Revoked:        v.Revoked,
		OccurredAt:     occurredAt,
	})
}

// NewRemovalEvent builds a payload carrying only the removed identifier.
func NewRemovalEvent(id domain.VerificationID, verifier domain.Address, occurredAt uint64) ([]byte, error) {
	return json.Marshal(VerificationEvent{
		Type:       EventVerificationRemoved,
		UUID:       id,
		Verifier:   verifier,
		OccurredAt: occurredAt,
	})
}
