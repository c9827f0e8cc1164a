package models

import (
	"strings"

	"vcregistry/pkg/domain"
	"vcregistry/pkg/validation"
)

// VerifierRecordRequest is the body of add and update calls.
type VerifierRecordRequest struct {
	Account    string `json:"account,omitempty"`
	Name       string `json:"name" validate:"required"`
	SigningKey string `json:"signing_key" validate:"required"`
}

func (r *VerifierRecordRequest) Normalize() {
	r.Account = strings.TrimSpace(r.Account)
	r.SigningKey = strings.TrimSpace(r.SigningKey)
}

// Validate checks shape only. Null identities and empty names are rejected by
// the service so every entry point gets the same answer.
func (r *VerifierRecordRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if _, err := domain.ParseLabel(r.Name); err != nil {
		return err
	}
	if _, err := domain.ParseAddress(r.SigningKey); err != nil {
		return err
	}
	return nil
}

// Record converts the request into a verifier record for account.
func (r *VerifierRecordRequest) Record(account domain.Address) (Verifier, error) {
	name, err := domain.ParseLabel(r.Name)
	if err != nil {
		return Verifier{}, err
	}
	key, err := domain.ParseAddress(r.SigningKey)
	if err != nil {
		return Verifier{}, err
	}
	return Verifier{Account: account, Name: name, SigningKey: key}, nil
}

// VerifierResponse is the wire form of a verifier.
type VerifierResponse struct {
	Account    domain.Address `json:"account"`
	Name       string         `json:"name"`
	NameHex    string         `json:"name_hex"`
	SigningKey domain.Address `json:"signing_key"`
}

func NewVerifierResponse(v *Verifier) VerifierResponse {
	return VerifierResponse{
		Account:    v.Account,
		Name:       v.Name.String(),
		NameHex:    v.Name.Hex(),
		SigningKey: v.SigningKey,
	}
}
