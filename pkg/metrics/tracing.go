package metrics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Tracer starts spans around handshakes and cipher operations. The
// OpenTelemetry implementation is compiled in with -tags otel.
type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder)
}

// SpanEnder finishes a span. A non-nil err marks it failed.
type SpanEnder func(err error)

// SpanKind mirrors the OpenTelemetry span kinds a peer produces.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer            // responder side of a handshake
	SpanKindClient            // initiator side of a handshake
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "server"
	case SpanKindClient:
		return "client"
	default:
		return "internal"
	}
}

// Span names.
const (
	SpanHandshakeInitiator = "bolt8.handshake.initiator"
	SpanHandshakeResponder = "bolt8.handshake.responder"
	SpanEncrypt            = "bolt8.encrypt"
	SpanDecrypt            = "bolt8.decrypt"
)

// Attribute keys.
const (
	AttrRole      = "bolt8.handshake.role"
	AttrProtocol  = "bolt8.noise.protocol"
	AttrNodeID    = "bolt8.peer.node_id"
	AttrBytes     = "bolt8.message.bytes"
	AttrDirection = "bolt8.rotation.direction"
)

// Attribute is a span key/value pair. Values are strings, bools, integers,
// floats, byte slices or fmt.Stringers.
type Attribute struct {
	Key   string
	Value any
}

// Attr builds an Attribute.
func Attr(key string, value any) Attribute {
	return Attribute{Key: key, Value: value}
}

// SpanOption configures a span at start.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  SpanKind
	attrs []Attribute
}

func newSpanConfig(opts []SpanOption) spanConfig {
	var cfg spanConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(c *spanConfig) { c.kind = kind }
}

// WithAttributes adds attributes to the span. Later keys win.
func WithAttributes(attrs ...Attribute) SpanOption {
	return func(c *spanConfig) { c.attrs = append(c.attrs, attrs...) }
}

// NoOpTracer discards every span.
type NoOpTracer struct{}

func (NoOpTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, SpanEnder) {
	return ctx, func(error) {}
}

// RecordedSpan is a finished span kept by SimpleTracer.
type RecordedSpan struct {
	Name       string
	TraceID    string
	SpanID     string
	ParentID   string
	Kind       SpanKind
	Start      time.Time
	Duration   time.Duration
	Attributes map[string]any
	Error      error
}

// SimpleTracer keeps finished spans in memory, oldest first. It is meant
// for tests and the demo.
type SimpleTracer struct {
	limit int

	mu    sync.Mutex
	spans []RecordedSpan
}

// NewSimpleTracer returns a tracer that keeps every span.
func NewSimpleTracer() *SimpleTracer {
	return &SimpleTracer{}
}

// NewBoundedTracer returns a tracer that keeps only the latest limit spans.
func NewBoundedTracer(limit int) *SimpleTracer {
	return &SimpleTracer{limit: limit}
}

// activeSpan is what SimpleTracer stores in a context so that child spans
// can find their parent.
type activeSpan struct {
	traceID, spanID string
}

type activeSpanKey struct{}

var spanSeq atomic.Uint64

func nextID() string {
	return fmt.Sprintf("%016x", spanSeq.Add(1))
}

func (t *SimpleTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := newSpanConfig(opts)
	rec := RecordedSpan{
		Name:       name,
		SpanID:     nextID(),
		Kind:       cfg.kind,
		Start:      time.Now(),
		Attributes: make(map[string]any, len(cfg.attrs)),
	}
	for _, a := range cfg.attrs {
		rec.Attributes[a.Key] = a.Value
	}
	if parent, ok := ctx.Value(activeSpanKey{}).(activeSpan); ok {
		rec.TraceID, rec.ParentID = parent.traceID, parent.spanID
	} else {
		rec.TraceID = nextID()
	}

	ctx = context.WithValue(ctx, activeSpanKey{}, activeSpan{traceID: rec.TraceID, spanID: rec.SpanID})
	return ctx, func(err error) {
		rec.Duration = time.Since(rec.Start)
		rec.Error = err
		t.record(rec)
	}
}

func (t *SimpleTracer) record(s RecordedSpan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, s)
	if t.limit > 0 && len(t.spans) > t.limit {
		t.spans = append(t.spans[:0], t.spans[len(t.spans)-t.limit:]...)
	}
}

// Spans returns a copy of the recorded spans.
func (t *SimpleTracer) Spans() []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RecordedSpan(nil), t.spans...)
}

// Named returns the recorded spans called name.
func (t *SimpleTracer) Named(name string) []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []RecordedSpan
	for _, s := range t.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops every recorded span.
func (t *SimpleTracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = nil
}

type tracerHolder struct{ Tracer }

var globalTracer atomic.Pointer[tracerHolder]

func init() {
	globalTracer.Store(&tracerHolder{NoOpTracer{}})
}

// SetTracer replaces the global tracer. nil restores the no-op tracer.
func SetTracer(t Tracer) {
	if t == nil {
		t = NoOpTracer{}
	}
	globalTracer.Store(&tracerHolder{t})
}

// GetTracer returns the global tracer.
func GetTracer() Tracer {
	return globalTracer.Load().Tracer
}

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return GetTracer().StartSpan(ctx, name, opts...)
}
