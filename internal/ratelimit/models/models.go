package models

import (
	"time"
)

// EndpointClass groups routes that share a request budget.
type EndpointClass string

const (
	// ClassDirectory covers owner mutations of the verifier directory.
	ClassDirectory EndpointClass = "directory"
	// ClassRegistry covers verifier writes to the attestation registry.
	ClassRegistry EndpointClass = "registry"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassDirectory, ClassRegistry:
		return true
	}
	return false
}

type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}
