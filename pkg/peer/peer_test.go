package peer

import (
	"context"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/internal/vectors"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/transport"
	"github.com/pzverkov/bolt8/pkg/wire"
)

func privKey(t testing.TB, s string) crypto.PrivateKey {
	t.Helper()
	k, err := crypto.PrivateKeyFromHex(s)
	require.NoError(t, err)
	return k
}

func hexString(b []byte) string { return hex.EncodeToString(b) }

func quiet() Option { return WithLogger(metrics.NullLogger()) }

// vectorPeers builds both sides with the published test keys.
func vectorPeers(t testing.TB, opts ...Option) (*Peer, []byte, *Peer) {
	t.Helper()
	opts = append([]Option{quiet()}, opts...)
	initiator, act, err := NewOutbound(
		privKey(t, vectors.InitiatorStatic),
		privKey(t, vectors.InitiatorEphemeral),
		vectors.Key33(vectors.ResponderStaticPub),
		opts...,
	)
	require.NoError(t, err)
	responder, err := NewInbound(
		privKey(t, vectors.ResponderStatic),
		privKey(t, vectors.ResponderEphemeral),
		opts...,
	)
	require.NoError(t, err)
	return initiator, act, responder
}

// sendBytes concatenates every SendBytes event.
func sendBytes(events []Event) []byte {
	var out []byte
	for _, ev := range events {
		if sb, ok := ev.(SendBytes); ok {
			out = append(out, sb.Data...)
		}
	}
	return out
}

func messages(events []Event) []Message {
	var out []Message
	for _, ev := range events {
		if m, ok := ev.(Message); ok {
			out = append(out, m)
		}
	}
	return out
}

func lastDisconnect(t testing.TB, events []Event) Disconnect {
	t.Helper()
	require.NotEmpty(t, events)
	d, ok := events[len(events)-1].(Disconnect)
	require.True(t, ok, "last event is %v", events[len(events)-1])
	return d
}

// established runs the handshake between two vector peers.
func established(t testing.TB, opts ...Option) (*Peer, *Peer) {
	t.Helper()
	initiator, act1, responder := vectorPeers(t, opts...)
	act2 := sendBytes(responder.FeedBytes(act1))
	act3 := sendBytes(initiator.FeedBytes(act2))
	responder.FeedBytes(act3)
	require.True(t, initiator.IsEstablished())
	require.True(t, responder.IsEstablished())
	return initiator, responder
}

func TestHandshakeVectorsThroughPeers(t *testing.T) {
	initiator, act1, responder := vectorPeers(t)
	assert.Equal(t, vectors.ActOne, hexString(act1))
	assert.Equal(t, StateHandshaking, initiator.State())

	events := responder.FeedBytes(act1)
	require.Len(t, events, 1)
	assert.Equal(t, vectors.ActTwo, hexString(events[0].(SendBytes).Data))

	events = initiator.FeedBytes(vectors.Bytes(vectors.ActTwo))
	require.Len(t, events, 2)
	assert.Equal(t, vectors.ActThree, hexString(events[0].(SendBytes).Data))
	assert.Equal(t, HandshakeComplete{RemoteStatic: vectors.Key33(vectors.ResponderStaticPub)}, events[1])

	events = responder.FeedBytes(vectors.Bytes(vectors.ActThree))
	require.Len(t, events, 1)
	assert.Equal(t, HandshakeComplete{RemoteStatic: vectors.Key33(vectors.InitiatorStaticPub)}, events[0])

	id, ok := responder.RemoteNodeID()
	assert.True(t, ok)
	assert.Equal(t, crypto.PublicKey(vectors.Key33(vectors.InitiatorStaticPub)), id)
	assert.Equal(t, StateEstablished, responder.State())
}

func TestSegmentedActOne(t *testing.T) {
	_, act1, responder := vectorPeers(t)
	require.Len(t, act1, constants.ActOneSize)

	for i := 0; i < len(act1)-1; i++ {
		assert.Empty(t, responder.FeedBytes(act1[i:i+1]), "byte %d", i)
	}
	events := responder.FeedBytes(act1[len(act1)-1:])
	require.Len(t, events, 1)
	assert.Equal(t, vectors.ActTwo, hexString(events[0].(SendBytes).Data))
}

func TestSegmentedHandshakeRandomPartitions(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	feed := func(p *Peer, data []byte) []Event {
		var events []Event
		for len(data) > 0 {
			n := 1 + rng.Intn(len(data))
			events = append(events, p.FeedBytes(data[:n])...)
			data = data[n:]
		}
		return events
	}

	for i := 0; i < 20; i++ {
		initiator, act1, responder := vectorPeers(t)
		act2 := sendBytes(feed(responder, act1))
		require.Equal(t, vectors.ActTwo, hexString(act2))

		events := feed(initiator, act2)
		act3 := sendBytes(events)
		require.Equal(t, vectors.ActThree, hexString(act3))

		events = feed(responder, act3)
		require.Len(t, events, 1)
		assert.Equal(t, HandshakeComplete{RemoteStatic: vectors.Key33(vectors.InitiatorStaticPub)}, events[0])

		// Same session keys as the single-shot case: the first frame
		// matches the published vector.
		b, err := initiator.Send(wire.MessageType(0x6865), []byte("llo"))
		require.NoError(t, err)
		assert.Equal(t, vectors.HelloFrames[0], hexString(b))
	}
}

func TestTwoTickTimeout(t *testing.T) {
	initiator, _ := established(t)

	assert.Empty(t, initiator.Tick())

	events := initiator.Tick()
	require.Len(t, events, 1)
	d := lastDisconnect(t, events)
	assert.Equal(t, qerrors.KindTimeout, d.Kind)
	assert.ErrorIs(t, d.Err, qerrors.ErrTimeout)
	assert.Equal(t, StateDisconnected, initiator.State())

	assert.Empty(t, initiator.Tick())
	assert.Empty(t, initiator.FeedBytes([]byte{1, 2, 3}))
}

func TestTickTimesOutStalledHandshake(t *testing.T) {
	_, _, responder := vectorPeers(t)
	assert.Empty(t, responder.Tick())
	assert.Equal(t, 0, responder.Queued(), "no ping before the handshake completes")
	d := lastDisconnect(t, responder.Tick())
	assert.Equal(t, qerrors.KindTimeout, d.Kind)
}

func TestPingKeepsPeerAlive(t *testing.T) {
	initiator, responder := established(t)

	assert.Empty(t, initiator.Tick())
	assert.True(t, initiator.AwaitingPong())
	assert.Equal(t, 1, initiator.Queued())

	ping, err := initiator.Flush()
	require.NoError(t, err)
	require.NotEmpty(t, ping)

	events := responder.FeedBytes(ping)
	assert.Empty(t, messages(events), "ping is consumed by the peer")
	pong := sendBytes(events)
	require.NotEmpty(t, pong)

	assert.Empty(t, initiator.FeedBytes(pong))
	assert.False(t, initiator.AwaitingPong())

	assert.Empty(t, initiator.Tick(), "pong cleared the liveness check")
	assert.True(t, initiator.IsEstablished())
}

func TestAtMostOnePingOutstanding(t *testing.T) {
	initiator, responder := established(t)
	initiator.Tick()
	_, err := initiator.Flush()
	require.NoError(t, err)

	// Traffic other than a pong clears the timeout but the ping is still
	// outstanding, so the next tick does not queue another.
	b, err := responder.SendMessage(&wire.Init{})
	require.NoError(t, err)
	initiator.FeedBytes(b)

	assert.Empty(t, initiator.Tick())
	assert.Equal(t, 0, initiator.Queued())
	assert.True(t, initiator.AwaitingPong())
}

func TestPingRoundTrip(t *testing.T) {
	initiator, responder := established(t)

	b, err := initiator.SendMessage(&wire.Ping{NumPongBytes: 290, PaddingBytes: wire.VarBytes{0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Len(t, b, 10+constants.FrameOverhead)

	pong := sendBytes(responder.FeedBytes(b))
	assert.Len(t, pong, 2+2+290+constants.FrameOverhead)
	assert.Empty(t, initiator.FeedBytes(pong))

	// Pings asking for too much are not answered.
	b, err = initiator.SendMessage(wire.NewPing(constants.MaxPongBytes + 1))
	require.NoError(t, err)
	assert.Empty(t, responder.FeedBytes(b))
}

func TestMessageEvents(t *testing.T) {
	initiator, responder := established(t)
	query := &wire.QueryChannelRange{FirstBlockHeight: 600000, NumBlocks: 144}

	b, err := initiator.SendMessage(query)
	require.NoError(t, err)
	events := responder.FeedBytes(b)
	require.Len(t, events, 1)

	msg := events[0].(Message)
	assert.Equal(t, wire.MsgQueryChannelRange, msg.Type)
	assert.Equal(t, query, msg.Msg)
	encoded, err := wire.Encode(query)
	require.NoError(t, err)
	assert.Equal(t, encoded[2:], msg.Payload)
}

func TestMessageOrder(t *testing.T) {
	initiator, responder := established(t)
	var stream []byte
	for i := 0; i < 5; i++ {
		b, err := initiator.SendMessage(&wire.QueryChannelRange{FirstBlockHeight: uint32(i)})
		require.NoError(t, err)
		stream = append(stream, b...)
	}

	msgs := messages(responder.FeedBytes(stream))
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, uint32(i), m.Msg.(*wire.QueryChannelRange).FirstBlockHeight)
	}
}

func TestUnknownMessagePassthrough(t *testing.T) {
	initiator, responder := established(t)
	b, err := initiator.Send(0x8001, []byte{1, 2, 3})
	require.NoError(t, err)

	msgs := messages(responder.FeedBytes(b))
	require.Len(t, msgs, 1)
	assert.Equal(t, wire.MessageType(0x8001), msgs[0].Type)
	assert.Equal(t, []byte{1, 2, 3}, msgs[0].Payload)
	assert.Equal(t, &wire.Unknown{Type: 0x8001, Payload: []byte{1, 2, 3}}, msgs[0].Msg)
	assert.True(t, responder.IsEstablished())
}

func TestMalformedMessageDisconnects(t *testing.T) {
	initiator, responder := established(t)
	b, err := initiator.Send(wire.MsgPing, []byte{0x01})
	require.NoError(t, err)

	d := lastDisconnect(t, responder.FeedBytes(b))
	assert.Equal(t, qerrors.KindMalformedMessage, d.Kind)
	assert.ErrorIs(t, d.Err, qerrors.ErrShortField)
}

func TestTamperedLengthTag(t *testing.T) {
	initiator, responder := established(t)
	b, err := initiator.SendMessage(&wire.Init{})
	require.NoError(t, err)
	b[0] ^= 0x80

	events := responder.FeedBytes(b)
	require.Len(t, events, 1)
	d := lastDisconnect(t, events)
	assert.Equal(t, qerrors.KindAuthFail, d.Kind)
	assert.Empty(t, messages(events))
	assert.Equal(t, StateDisconnected, responder.State())
	assert.ErrorIs(t, responder.DisconnectReason(), qerrors.ErrAuthenticationFailed)
}

func TestHandshakeFailureEvents(t *testing.T) {
	testCases := []struct {
		name string
		act  string
		want qerrors.Kind
	}{
		{"bad version", vectors.ActOneBadVersion, qerrors.KindUnsupportedVersion},
		{"bad key", vectors.ActOneBadKey, qerrors.KindInvalidPoint},
		{"bad mac", vectors.ActOneBadMAC, qerrors.KindAuthFail},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, responder := vectorPeers(t)
			events := responder.FeedBytes(vectors.Bytes(tc.act))
			require.Len(t, events, 1)
			assert.Equal(t, tc.want, lastDisconnect(t, events).Kind)
		})
	}
}

func TestEnqueueWhileHandshaking(t *testing.T) {
	initiator, act1, responder := vectorPeers(t)
	require.NoError(t, initiator.Enqueue(&wire.Init{Features: wire.VarBytes{0x02}}))

	out, err := initiator.Flush()
	require.NoError(t, err)
	assert.Empty(t, out, "nothing is framed before the handshake")

	_, err = initiator.SendMessage(&wire.Init{})
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err))

	act2 := sendBytes(responder.FeedBytes(act1))
	events := initiator.FeedBytes(act2)
	require.Len(t, events, 3)
	assert.IsType(t, SendBytes{}, events[0])
	assert.IsType(t, HandshakeComplete{}, events[1])
	assert.IsType(t, SendBytes{}, events[2])
	assert.Equal(t, 0, initiator.Queued())

	// Act three and the first frame arrive in one read.
	events = responder.FeedBytes(sendBytes(events))
	require.Len(t, events, 2)
	assert.IsType(t, HandshakeComplete{}, events[0])
	assert.Equal(t, &wire.Init{Features: wire.VarBytes{0x02}}, events[1].(Message).Msg)
}

func TestInitialRoutingSync(t *testing.T) {
	initiator, responder := established(t)
	assert.Equal(t, NoSyncRequested, responder.SyncStatus().State)

	b, err := initiator.SendMessage(&wire.Init{Features: wire.VarBytes{0x08}})
	require.NoError(t, err)
	responder.FeedBytes(b)
	assert.Equal(t, SyncStatus{State: ChannelsSyncing}, responder.SyncStatus())

	responder.SetSyncStatus(SyncStatus{State: ChannelsSyncing, Channel: 42})
	assert.Equal(t, uint64(42), responder.SyncStatus().Channel)
}

func TestOversizedSend(t *testing.T) {
	initiator, _ := established(t)
	_, err := initiator.Send(0x8001, make([]byte, constants.MaxPayloadSize+1))
	assert.ErrorIs(t, err, qerrors.ErrMessageTooLarge)
	assert.Equal(t, qerrors.KindMalformedMessage, qerrors.KindOf(err))
	assert.True(t, initiator.IsEstablished())

	b, err := initiator.Send(0x8001, make([]byte, constants.MaxPayloadSize))
	require.NoError(t, err)
	assert.Len(t, b, constants.MaxMessageSize+constants.FrameOverhead)
}

func TestReadBufferCap(t *testing.T) {
	initiator, responder := established(t, WithMaxReadBuffer(100))
	b, err := initiator.Send(0x8001, make([]byte, 1000))
	require.NoError(t, err)

	d := lastDisconnect(t, responder.FeedBytes(b[:200]))
	assert.Equal(t, qerrors.KindMalformedMessage, d.Kind)
	assert.ErrorIs(t, d.Err, qerrors.ErrBadLength)
}

func TestCloseSemantics(t *testing.T) {
	initiator, _ := established(t)
	require.NoError(t, initiator.Close())
	assert.Equal(t, StateDisconnected, initiator.State())
	assert.ErrorIs(t, initiator.DisconnectReason(), qerrors.ErrPeerClosed)

	err := initiator.Close()
	assert.ErrorIs(t, err, qerrors.ErrHostViolation)
	assert.Equal(t, qerrors.KindHostViolation, qerrors.KindOf(err))

	_, err = initiator.SendMessage(wire.NewPing(0))
	assert.Equal(t, qerrors.KindHostViolation, qerrors.KindOf(err), "send: %v", err)
	_, err = initiator.Send(0x8001, nil)
	assert.Equal(t, qerrors.KindHostViolation, qerrors.KindOf(err), "send raw: %v", err)
	err = initiator.Enqueue(&wire.Init{})
	assert.Equal(t, qerrors.KindHostViolation, qerrors.KindOf(err), "enqueue: %v", err)
	_, err = initiator.Flush()
	assert.Equal(t, qerrors.KindHostViolation, qerrors.KindOf(err), "flush: %v", err)

	for name, events := range map[string][]Event{
		"feed": initiator.FeedBytes([]byte{0x00}),
		"tick": initiator.Tick(),
	} {
		require.Len(t, events, 1, name)
		d, ok := events[0].(Disconnect)
		require.True(t, ok, "%s: got %v", name, events[0])
		assert.Equal(t, qerrors.KindHostViolation, d.Kind, name)
	}
	assert.ErrorIs(t, initiator.DisconnectReason(), qerrors.ErrPeerClosed, "late calls must not rewrite the reason")
}

func TestCloseAfterDisconnect(t *testing.T) {
	initiator, _ := established(t)
	initiator.Tick()
	initiator.Tick()

	// Torn down by the core but not yet closed by the host.
	_, err := initiator.SendMessage(wire.NewPing(0))
	assert.ErrorIs(t, err, qerrors.ErrPeerDisconnected)
	assert.Empty(t, initiator.FeedBytes([]byte{0x00}))
	assert.Empty(t, initiator.Tick())

	assert.NoError(t, initiator.Close(), "the first close is legal after a disconnect")
	assert.Error(t, initiator.Close())
}

func TestConfigValidation(t *testing.T) {
	static, eph := privKey(t, vectors.ResponderStatic), privKey(t, vectors.ResponderEphemeral)
	_, err := NewInbound(static, eph, WithMaxReadBuffer(-1))
	assert.Error(t, err)
	_, err = NewInbound(static, eph, WithMaxReadBuffer(10))
	assert.Error(t, err)
	_, err = NewInbound(static, eph, WithMaxReadBuffer(constants.ActThreeSize))
	assert.NoError(t, err)
	_, _, err = NewOutbound(privKey(t, vectors.InitiatorStatic), privKey(t, vectors.InitiatorEphemeral), crypto.PublicKey{0x04})
	assert.Equal(t, qerrors.KindInvalidPoint, qerrors.KindOf(err))
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	NoOpObserver
	handshakes  int
	completed   int
	encrypts    int
	decrypts    int
	rotations   map[string]int
	authFails   int
	protoErrors int
	disconnects []error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{rotations: make(map[string]int)}
}

func (o *recordingObserver) OnHandshakeStart(ctx context.Context, _ string) (context.Context, func(error)) {
	o.handshakes++
	return ctx, func(err error) {
		if err == nil {
			o.completed++
		}
	}
}

func (o *recordingObserver) OnEncrypt(ctx context.Context, _ int) (context.Context, func(error)) {
	o.encrypts++
	return ctx, noop
}

func (o *recordingObserver) OnDecrypt(ctx context.Context, _ int) (context.Context, func(error)) {
	o.decrypts++
	return ctx, noop
}

func (o *recordingObserver) OnKeyRotation(d string) { o.rotations[d]++ }
func (o *recordingObserver) OnAuthFailure()         { o.authFails++ }
func (o *recordingObserver) OnProtocolError(error)  { o.protoErrors++ }
func (o *recordingObserver) OnDisconnect(err error) { o.disconnects = append(o.disconnects, err) }

func TestObserverHooks(t *testing.T) {
	obs := newRecordingObserver()
	initiator, responder := established(t, WithObserver(obs))
	assert.Equal(t, 2, obs.handshakes)
	assert.Equal(t, 2, obs.completed)

	// 500 messages are 1000 cipher operations: one rotation each way.
	var stream []byte
	for i := 0; i < 500; i++ {
		b, err := initiator.SendMessage(&wire.Init{})
		require.NoError(t, err)
		stream = append(stream, b...)
	}
	assert.Len(t, messages(responder.FeedBytes(stream)), 500)
	assert.Equal(t, 1, obs.rotations["outbound"])
	assert.Equal(t, 1, obs.rotations["inbound"])
	assert.Equal(t, uint64(1), initiator.Rotations(transport.Outbound))
	assert.Equal(t, uint64(1), responder.Rotations(transport.Inbound))
	assert.Equal(t, 500, obs.encrypts)

	b, err := initiator.SendMessage(&wire.Init{})
	require.NoError(t, err)
	b[len(b)-1] ^= 1
	responder.FeedBytes(b)
	assert.Equal(t, 1, obs.authFails)
	require.Len(t, obs.disconnects, 1)
	assert.ErrorIs(t, obs.disconnects[0], qerrors.ErrAuthenticationFailed)
}

func TestObserverFactory(t *testing.T) {
	var built []*Peer
	factory := func(p *Peer) Observer {
		built = append(built, p)
		return nil
	}
	initiator, responder := established(t, WithObserverFactory(factory))
	assert.Equal(t, []*Peer{initiator, responder}, built)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Handshaking", StateHandshaking.String())
	assert.Equal(t, "Established", StateEstablished.String())
	assert.Equal(t, "Disconnected", StateDisconnected.String())
}

func TestEventStrings(t *testing.T) {
	assert.Equal(t, "SendBytes(3)", SendBytes{Data: []byte{1, 2, 3}}.String())
	assert.Equal(t, "Message(Ping, 0)", Message{Type: wire.MsgPing}.String())
	assert.Equal(t, "Disconnect(Timeout)", newDisconnect(qerrors.ErrTimeout).String())
}

func BenchmarkPeerRoundTrip(b *testing.B) {
	initiator, responder := established(b)
	msg := &wire.Unknown{Type: 0x8001, Payload: make([]byte, 1024)}
	b.SetBytes(1024)
	for i := 0; i < b.N; i++ {
		out, err := initiator.SendMessage(msg)
		if err != nil {
			b.Fatal(err)
		}
		responder.FeedBytes(out)
	}
}
