package models

import (
	"encoding/json"

	"vcregistry/pkg/domain"
)

// Verifier is a trusted party allowed to attest verifications. It is keyed by
// Account; SigningKey is a separate identity whose signatures the registry
// accepts on the verifier's behalf.
type Verifier struct {
	Account    domain.Address
	Name       domain.Label
	SigningKey domain.Address
}

// Exists reports whether the record denotes a registered verifier.
// The empty name is the "absent" sentinel.
func (v Verifier) Exists() bool {
	return !v.Name.IsNil()
}

// Event types emitted by directory mutations.
const (
	EventVerifierAdded   = "verifier_added"
	EventVerifierUpdated = "verifier_updated"
	EventVerifierRemoved = "verifier_removed"
)

// VerifierEvent is the payload of every directory event. Removal events carry
// the record as it was before deletion.
type VerifierEvent struct {
	Type       string         `json:"type"`
	Account    domain.Address `json:"account"`
	Name       string         `json:"name"`
	NameHex    string         `json:"name_hex"`
	SigningKey domain.Address `json:"signing_key"`
	OccurredAt int64          `json:"occurred_at"`
}

// NewVerifierEvent builds the event payload for v.
func NewVerifierEvent(eventType string, v Verifier, occurredAt int64) ([]byte, error) {
	return json.Marshal(VerifierEvent{
		Type:       eventType,
		Account:    v.Account,
		Name:       v.Name.String(),
		NameHex:    v.Name.Hex(),
		SigningKey: v.SigningKey,
		OccurredAt: occurredAt,
	})
}
