package tracer

import "context"

// NoopTracer is a Tracer that records nothing. Use it in tests or when
// tracing is disabled.
type NoopTracer struct{}

// NewNoop returns a tracer that discards all spans.
func NewNoop() *NoopTracer {
	return &NoopTracer{}
}

func (t *NoopTracer) Start(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error)                     {}
func (noopSpan) SetAttributes(...Attribute)    {}
func (noopSpan) AddEvent(string, ...Attribute) {}
