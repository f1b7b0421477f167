package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
)

// PeerObserver records metrics, traces and logs for one peer. It satisfies
// peer.Observer; install it with peer.WithObserverFactory so each
// connection gets its own.
type PeerObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
	role      string
}

// PeerObserverConfig configures a peer observer.
type PeerObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
	Role      string // "initiator" or "responder"
}

// NewPeerObserver creates a new peer observer.
func NewPeerObserver(cfg PeerObserverConfig) *PeerObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	return &PeerObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("peer").With(Fields{"role": cfg.Role}),
		role:      cfg.Role,
	}
}

// OnHandshakeStart starts the handshake span. The returned function is
// called once with the handshake outcome.
func (o *PeerObserver) OnHandshakeStart(ctx context.Context, role string) (context.Context, func(error)) {
	spanName := SpanHandshakeInitiator
	kind := SpanKindClient
	if role == "responder" {
		spanName = SpanHandshakeResponder
		kind = SpanKindServer
	}

	o.collector.HandshakeStarted()
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, spanName,
		WithSpanKind(kind),
		WithAttributes(Attr(AttrRole, role), Attr(AttrProtocol, constants.ProtocolName)),
	)

	var once sync.Once
	return ctx, func(err error) {
		once.Do(func() {
			duration := time.Since(start)
			if err != nil {
				o.collector.HandshakeFailed()
				o.logger.Debug("handshake failed", Fields{
					"error":    err.Error(),
					"duration": duration.String(),
				})
			} else {
				o.collector.RecordHandshakeLatency(duration)
				o.logger.Debug("handshake completed", Fields{"duration": duration.String()})
			}
			endSpan(err)
		})
	}
}

// OnEncrypt records the framing of one outbound message.
func (o *PeerObserver) OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanEncrypt, WithAttributes(Attr(AttrBytes, plaintextLen)))

	return ctx, func(err error) {
		o.collector.RecordEncryptLatency(time.Since(start))
		if err != nil {
			o.collector.RecordEncryptError()
			o.logger.Debug("encrypt failed", Fields{"error": err.Error()})
		} else {
			o.collector.RecordMessageSent(plaintextLen)
		}
		endSpan(err)
	}
}

// OnDecrypt records one inbound read.
func (o *PeerObserver) OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanDecrypt, WithAttributes(Attr(AttrBytes, ciphertextLen)))

	return ctx, func(err error) {
		o.collector.RecordDecryptLatency(time.Since(start))
		o.collector.RecordBytesReceived(ciphertextLen)
		if err != nil {
			o.collector.RecordDecryptError()
			o.logger.Debug("decrypt failed", Fields{"error": err.Error()})
		}
		endSpan(err)
	}
}

// OnKeyRotation records a key rotation.
func (o *PeerObserver) OnKeyRotation(direction string) {
	o.collector.RecordKeyRotation(direction)
}

// OnAuthFailure records an authentication failure.
func (o *PeerObserver) OnAuthFailure() {
	o.collector.RecordAuthFailure()
	o.logger.Warn("authentication failed")
}

// OnProtocolError records a protocol error.
func (o *PeerObserver) OnProtocolError(err error) {
	o.collector.RecordProtocolError()
	o.logger.Warn("protocol error", Fields{"error": err.Error()})
}

// OnDisconnect records the teardown of the peer.
func (o *PeerObserver) OnDisconnect(err error) {
	timeout := qerrors.KindOf(err) == qerrors.KindTimeout
	o.collector.RecordDisconnect(timeout)
	if timeout {
		o.logger.Info("peer timed out")
	}
}

// Logger returns the observer's logger for custom logging.
func (o *PeerObserver) Logger() *Logger {
	return o.logger
}
