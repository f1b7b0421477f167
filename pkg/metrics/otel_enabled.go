//go:build otel

package metrics

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pzverkov/bolt8/pkg/version"
)

const instrumentationName = "github.com/pzverkov/bolt8"

// OTelTracer sends spans to an OpenTelemetry TracerProvider.
type OTelTracer struct {
	tracer  trace.Tracer
	service attribute.KeyValue
}

// NewOTelTracer traces through the globally registered provider.
func NewOTelTracer(serviceName string) *OTelTracer {
	return NewOTelTracerWithProvider(otel.GetTracerProvider(), serviceName)
}

// NewOTelTracerWithProvider traces through tp.
func NewOTelTracerWithProvider(tp trace.TracerProvider, serviceName string) *OTelTracer {
	if serviceName == "" {
		serviceName = "bolt8"
	}
	return &OTelTracer{
		tracer:  tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(version.String())),
		service: attribute.String("service.name", serviceName),
	}
}

func (t *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := newSpanConfig(opts)
	kvs := make([]attribute.KeyValue, 0, len(cfg.attrs)+1)
	kvs = append(kvs, t.service)
	for _, a := range cfg.attrs {
		kvs = append(kvs, otelAttribute(a))
	}

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(otelSpanKind(cfg.kind)),
		trace.WithAttributes(kvs...),
	)
	return ctx, func(err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

// OTelEnabled reports whether the binary was built with -tags otel.
func OTelEnabled() bool { return true }

func otelSpanKind(k SpanKind) trace.SpanKind {
	switch k {
	case SpanKindServer:
		return trace.SpanKindServer
	case SpanKindClient:
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

func otelAttribute(a Attribute) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case uint32:
		return attribute.Int64(a.Key, int64(v))
	case uint64:
		if v <= math.MaxInt64 {
			return attribute.Int64(a.Key, int64(v))
		}
		return attribute.String(a.Key, fmt.Sprint(v))
	case float64:
		return attribute.Float64(a.Key, v)
	case []byte:
		return attribute.String(a.Key, hex.EncodeToString(v))
	case fmt.Stringer:
		return attribute.String(a.Key, v.String())
	default:
		return attribute.String(a.Key, fmt.Sprint(v))
	}
}
