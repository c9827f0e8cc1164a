// Package tracer is a small tracing abstraction for the registry services.
//
// Services depend on the Tracer interface only. NoopTracer is used in tests,
// OTelTracer adapts OpenTelemetry in production.
package tracer

import (
	"context"
)

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanRegisterVerification,
//	    tracer.String(tracer.AttrCaller, caller.String()),
//	)
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute      { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute   { return Attribute{Key: key, Value: value} }
func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

// Span names.
const (
	SpanAddVerifier          = "directory.add_verifier"
	SpanUpdateVerifier       = "directory.update_verifier"
	SpanRemoveVerifier       = "directory.remove_verifier"
	SpanRegisterVerification = "registry.register_verification"
	SpanRevokeVerification   = "registry.revoke_verification"
	SpanRemoveVerification   = "registry.remove_verification"
	SpanIsVerified           = "registry.is_verified"
)

// Attribute keys.
const (
	AttrCaller     = "caller"
	AttrAccount    = "account"
	AttrSubject    = "subject"
	AttrUUID       = "verification.uuid"
	AttrSigner     = "signer"
	AttrIndexSize  = "index.size"
	AttrIsVerified = "verified"
)

// Event names.
const (
	EventSignerRecovered = "signer.recovered"
	EventEventQueued     = "outbox.queued"
)
