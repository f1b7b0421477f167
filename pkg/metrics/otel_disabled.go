//go:build !otel

package metrics

import "context"

// OTelTracer is a placeholder in builds without -tags otel. Its spans are
// dropped.
type OTelTracer struct{}

// NewOTelTracer returns the placeholder tracer.
func NewOTelTracer(string) *OTelTracer { return &OTelTracer{} }

func (*OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return NoOpTracer{}.StartSpan(ctx, name, opts...)
}

// OTelEnabled reports whether the binary was built with -tags otel.
func OTelEnabled() bool { return false }
