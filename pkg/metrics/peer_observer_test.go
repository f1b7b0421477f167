package metrics

import (
	"context"
	"errors"
	"testing"

	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPeerObserver(role string) (*PeerObserver, *Collector, *SimpleTracer) {
	c := NewCollector(nil)
	tr := NewSimpleTracer()
	o := NewPeerObserver(PeerObserverConfig{
		Collector: c,
		Tracer:    tr,
		Logger:    NullLogger(),
		Role:      role,
	})
	return o, c, tr
}

func TestPeerObserverHandshake(t *testing.T) {
	o, c, tr := newTestPeerObserver("initiator")

	_, done := o.OnHandshakeStart(context.Background(), "initiator")
	done(nil)
	done(errors.New("ignored"))

	_, done = o.OnHandshakeStart(context.Background(), "responder")
	done(qerrors.ErrAuthenticationFailed)

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.HandshakesTotal)
	assert.Equal(t, uint64(1), snap.HandshakesFailed)
	assert.Equal(t, uint64(1), snap.HandshakeLatency.Count)

	spans := tr.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, SpanHandshakeInitiator, spans[0].Name)
	assert.Equal(t, SpanHandshakeResponder, spans[1].Name)
	assert.Equal(t, "initiator", spans[0].Attributes[AttrRole])
	assert.Error(t, spans[1].Error)
}

func TestPeerObserverTraffic(t *testing.T) {
	o, c, _ := newTestPeerObserver("initiator")
	ctx := context.Background()

	_, done := o.OnEncrypt(ctx, 100)
	done(nil)
	_, done = o.OnEncrypt(ctx, 70000)
	done(qerrors.ErrMessageTooLarge)
	_, done = o.OnDecrypt(ctx, 134)
	done(nil)
	_, done = o.OnDecrypt(ctx, 20)
	done(qerrors.ErrAuthenticationFailed)

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.MessagesSent)
	assert.Equal(t, uint64(100), snap.BytesSent)
	assert.Equal(t, uint64(1), snap.EncryptErrors)
	assert.Equal(t, uint64(2), snap.ReadsProcessed)
	assert.Equal(t, uint64(154), snap.BytesReceived)
	assert.Equal(t, uint64(1), snap.DecryptErrors)
}

func TestPeerObserverEvents(t *testing.T) {
	o, c, _ := newTestPeerObserver("responder")

	o.OnKeyRotation("outbound")
	o.OnKeyRotation("inbound")
	o.OnKeyRotation("inbound")
	o.OnAuthFailure()
	o.OnProtocolError(qerrors.ErrShortField)
	o.OnDisconnect(qerrors.ErrTimeout)
	o.OnDisconnect(nil)

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.KeyRotationsSent)
	assert.Equal(t, uint64(2), snap.KeyRotationsRecv)
	assert.Equal(t, uint64(1), snap.AuthFailures)
	assert.Equal(t, uint64(1), snap.ProtocolErrors)
	assert.Equal(t, uint64(2), snap.Disconnects)
	assert.Equal(t, uint64(1), snap.Timeouts)
}

func TestPeerObserverDefaults(t *testing.T) {
	o := NewPeerObserver(PeerObserverConfig{Role: "initiator"})
	assert.Same(t, Global(), o.collector)
	assert.NotNil(t, o.Logger())
}
