package models

import (
	"fmt"
	"strings"
)

// KeyPrefix represents the type of rate limit key.
type KeyPrefix string

const (
	KeyPrefixIP     KeyPrefix = "ip"
	KeyPrefixCaller KeyPrefix = "caller"
)

// RateLimitKey is a value object encapsulating rate limit bucket key construction.
// It centralizes key format and sanitization to prevent key collision attacks.
type RateLimitKey struct {
	prefix     KeyPrefix
	identifier string
	class      EndpointClass
}

// NewRateLimitKey creates a rate limit key for IP or caller based limits.
func NewRateLimitKey(prefix KeyPrefix, identifier string, class EndpointClass) RateLimitKey {
	return RateLimitKey{
		prefix:     prefix,
		identifier: sanitizeKeySegment(identifier),
		class:      class,
	}
}

// String returns the formatted key for storage lookup.
func (k RateLimitKey) String() string {
	if k.class == "" {
		return fmt.Sprintf("%s:%s", k.prefix, k.identifier)
	}
	return fmt.Sprintf("%s:%s:%s", k.prefix, k.identifier, k.class)
}

// sanitizeKeySegment escapes delimiter characters so a client controlled
// segment containing ':' cannot address a neighbouring bucket.
//
// Escape rules (order matters):
//  1. '_' becomes '__'
//  2. ':' becomes '_c'
//
// Examples:
//   - "::1"       → "_c_c1"
//   - "a_b"       → "a__b"
//   - "a_:b"      → "a___cb"
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
