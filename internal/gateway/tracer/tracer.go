// Package tracer provides a lightweight tracing abstraction for the gateway.
//
// The gateway emits a span per protected request with events marking the
// pipeline stage that terminated it, without depending directly on
// OpenTelemetry APIs.
//
// Implementations:
//   - NoopTracer: for tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans for distributed tracing.
// Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span and event names used by the gateway.
const (
	SpanProtect = "gateway.protect"

	EventMethodRejected    = "gateway.method_rejected"
	EventAuthRejected      = "gateway.auth_rejected"
	EventRateLimitRejected = "gateway.rate_limit_rejected"
	EventCSRFRejected      = "gateway.csrf_rejected"
	EventDispatched        = "gateway.dispatched"
)

// Attribute keys used by the gateway.
const (
	AttrRoute     = "gateway.route"
	AttrMethod    = "http.method"
	AttrSubject   = "gateway.subject"
	AttrClass     = "ratelimit.class"
	AttrRemaining = "ratelimit.remaining"
)
