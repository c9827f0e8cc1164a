package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"vcregistry/pkg/domain"
	dErrors "vcregistry/pkg/domain-errors"
	"vcregistry/pkg/validation"
)

// SignatureLength is the size of an r‖s‖v recoverable secp256k1 signature.
const SignatureLength = 65

// RegisterVerificationRequest carries a signed claim.
type RegisterVerificationRequest struct {
	Subject        string `json:"subject" validate:"required"`
	ExpirationTime uint64 `json:"expiration_time" validate:"required"`
	Signature      string `json:"signature" validate:"required,hex0x"`

	subject   domain.Address
	signature []byte
}

func (r *RegisterVerificationRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Signature = strings.TrimSpace(r.Signature)
}

func (r *RegisterVerificationRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	subject, err := domain.ParseAddress(r.Subject)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(r.Signature)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "signature must be 0x-prefixed hex")
	}
	if len(sig) != SignatureLength {
		return dErrors.New(dErrors.CodeInvalidSignature, "signature must be 65 bytes")
	}
	r.subject = subject
	r.signature = sig
	return nil
}

// ParsedClaim returns the claim. Only valid after Validate succeeds.
func (r *RegisterVerificationRequest) ParsedClaim() Claim {
	return Claim{Subject: r.subject, ExpirationTime: r.ExpirationTime}
}

// ParsedSignature returns the decoded signature. Only valid after Validate succeeds.
func (r *RegisterVerificationRequest) ParsedSignature() []byte {
	return r.signature
}

// VerificationResponse is the wire form of a verification. Absent records are
// rendered with Exists=false and zero fields.
type VerificationResponse struct {
	UUID           domain.VerificationID `json:"uuid"`
	Verifier       domain.Address        `json:"verifier"`
	Subject        domain.Address        `json:"subject"`
	IssueTime      uint64                `json:"issue_time"`
	ExpirationTime uint64                `json:"expiration_time"`
	Revoked        bool                  `json:"revoked"`
	Exists         bool                  `json:"exists"`
	Valid          bool                  `json:"valid"`
}

func NewVerificationResponse(v Verification, now uint64) VerificationResponse {
	return VerificationResponse{
		UUID:           v.UUID,
		Verifier:       v.Verifier,
		Subject:        v.Subject,
		IssueTime:      v.IssueTime,
		ExpirationTime: v.ExpirationTime,
		Revoked:        v.Revoked,
		Exists:         v.Exists(),
		Valid:          v.IsValid(now),
	}
}

// VerificationListResponse wraps an ordered index resolution.
type VerificationListResponse struct {
	Verifications []VerificationResponse `json:"verifications"`
	Count         int                    `json:"count"`
}
