// Package peer drives one BOLT #8 connection from the first handshake byte
// to disconnection, and coordinates many of them through a Manager.
//
// A Peer is a pure state machine over byte slices. The host hands it bytes
// read from the socket and gets back Events:
//
//	raw bytes -> FeedBytes -> [handshake | conduit] -> wire.Decode -> []Event
//	wire.Message -> SendMessage -> wire.Encode -> conduit -> bytes for socket
//
// Peer Lifecycle:
//
//	Handshaking --(act three)--> Established --(error, timeout)--> Disconnected
//	     |                                                              ^
//	     +------------------(error, timeout)----------------------------+
//
// A Peer never performs I/O and never blocks. It is not safe for concurrent
// use; the Manager serializes access per peer.
package peer

import (
	"context"

	"github.com/samber/oops"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/handshake"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/transport"
	"github.com/pzverkov/bolt8/pkg/wire"
)

// State is the connection phase of a peer.
type State int

const (
	StateHandshaking State = iota
	StateEstablished
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "Handshaking"
	case StateEstablished:
		return "Established"
	default:
		return "Disconnected"
	}
}

// Peer is one connection. Exactly one of hs and conduit is set while the
// peer is live.
type Peer struct {
	role  handshake.Role
	state State

	hs      *handshake.Handshake
	conduit *transport.Conduit
	remote  crypto.PublicKey

	cfg      Config
	observer Observer
	logger   *metrics.Logger
	ctx      context.Context
	hsDone   func(error)

	// queue holds encoded messages not yet framed, in send order.
	queue [][]byte

	// awaiting is set by a tick and cleared by inbound progress. A tick
	// that finds it still set times the peer out.
	awaiting bool
	// pingOutstanding is set when a Ping is queued and cleared by a Pong.
	pingOutstanding bool

	sync   SyncStatus
	reason error
	closed bool
}

// NewOutbound starts a connection to remote. The returned bytes are act one
// and must be written to the socket first. A zero ephemeral key is replaced
// with a fresh one.
func NewOutbound(localStatic, localEphemeral crypto.PrivateKey, remote crypto.PublicKey, opts ...Option) (*Peer, []byte, error) {
	hs, err := handshake.NewInitiator(localStatic, localEphemeral, remote)
	if err != nil {
		return nil, nil, err
	}
	p, err := newPeer(hs, opts)
	if err != nil {
		hs.Abort()
		return nil, nil, err
	}
	act, err := hs.Initiate()
	if err != nil {
		p.teardown(err)
		return nil, nil, err
	}
	return p, act, nil
}

// NewInbound prepares for a connection accepted from the network.
func NewInbound(localStatic, localEphemeral crypto.PrivateKey, opts ...Option) (*Peer, error) {
	hs, err := handshake.NewResponder(localStatic, localEphemeral)
	if err != nil {
		return nil, err
	}
	p, err := newPeer(hs, opts)
	if err != nil {
		hs.Abort()
		return nil, err
	}
	return p, nil
}

func newPeer(hs *handshake.Handshake, opts []Option) (*Peer, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	p := &Peer{
		role:   hs.Role(),
		state:  StateHandshaking,
		hs:     hs,
		cfg:    cfg,
		logger: cfg.Logger.Named("peer").With(metrics.Fields{"role": hs.Role().String()}),
	}
	p.observer = observerFromConfig(cfg, p)
	p.ctx, p.hsDone = p.observer.OnHandshakeStart(context.Background(), hs.Role().String())
	return p, nil
}

// Role returns the handshake role of the local side.
func (p *Peer) Role() handshake.Role { return p.role }

// State returns the connection phase.
func (p *Peer) State() State { return p.state }

// IsEstablished reports whether the handshake has completed and the peer
// is still connected.
func (p *Peer) IsEstablished() bool { return p.state == StateEstablished }

// RemoteNodeID returns the authenticated remote static key. ok is false
// until the handshake completes.
func (p *Peer) RemoteNodeID() (id crypto.PublicKey, ok bool) {
	return p.remote, !p.remote.IsZero()
}

// SyncStatus returns the gossip sync cursor of this peer.
func (p *Peer) SyncStatus() SyncStatus { return p.sync }

// SetSyncStatus moves the gossip sync cursor.
func (p *Peer) SetSyncStatus(s SyncStatus) { p.sync = s }

// DisconnectReason returns the error that disconnected the peer, or nil.
func (p *Peer) DisconnectReason() error { return p.reason }

// Queued returns the number of messages waiting to be framed.
func (p *Peer) Queued() int { return len(p.queue) }

// AwaitingPong reports whether a Ping is outstanding.
func (p *Peer) AwaitingPong() bool { return p.pingOutstanding }

// Rotations returns how many times the key of direction d was rotated.
func (p *Peer) Rotations(d transport.Direction) uint64 {
	if p.conduit == nil {
		return 0
	}
	return p.conduit.Rotations(d)
}

// FeedBytes consumes bytes read from the socket. Partial input is buffered.
// A Disconnect event, if any, is always last. After Close it returns a
// single Disconnect carrying a host violation.
func (p *Peer) FeedBytes(data []byte) []Event {
	if p.closed {
		return []Event{newDisconnect(useAfterClose("feed"))}
	}
	if p.state == StateDisconnected {
		return nil
	}

	var events []Event
	if p.state == StateHandshaking {
		events = p.feedHandshake(data, events)
	} else {
		events = p.feedTransport(data, events)
	}
	if p.state == StateEstablished {
		events = p.flushInto(events)
	}
	return events
}

func (p *Peer) feedHandshake(data []byte, events []Event) []Event {
	out, res, err := p.hs.Process(data)
	if err != nil {
		return p.disconnect(events, err)
	}
	if len(out) > 0 {
		p.awaiting = false
		events = append(events, SendBytes{Data: out})
	}
	if res == nil {
		if n := p.hs.Buffered(); n > p.cfg.MaxReadBuffer {
			return p.disconnect(events, oops.In("peer").With("buffered", n).Wrapf(qerrors.ErrBadLength, "read buffer"))
		}
		return events
	}

	p.establish(res)
	events = append(events, HandshakeComplete{RemoteStatic: res.RemoteStatic})
	if len(res.Remaining) > 0 {
		events = p.feedTransport(res.Remaining, events)
	}
	return events
}

func (p *Peer) establish(res *handshake.Result) {
	p.awaiting = false
	p.conduit = res.Conduit
	p.remote = res.RemoteStatic
	p.hs = nil
	p.state = StateEstablished
	p.hsDone(nil)

	p.logger = p.logger.With(metrics.Fields{"node_id": p.remote.String()})
	p.logger.Info("handshake complete")
}

func (p *Peer) feedTransport(data []byte, events []Event) []Event {
	_, done := p.observer.OnDecrypt(p.ctx, len(data))
	before := p.conduit.Rotations(transport.Inbound)
	defer p.noteRotations(transport.Inbound, before)

	p.conduit.Feed(data)
	for {
		raw, err := p.conduit.Next()
		if err != nil {
			done(err)
			return p.disconnect(events, err)
		}
		if raw == nil {
			break
		}
		if events, err = p.handleMessage(raw, events); err != nil {
			done(err)
			return p.disconnect(events, err)
		}
	}
	done(nil)

	if n := p.conduit.Buffered(); n > p.cfg.MaxReadBuffer {
		return p.disconnect(events, oops.In("peer").With("buffered", n).Wrapf(qerrors.ErrBadLength, "read buffer"))
	}
	return events
}

// handleMessage decodes one transport message. Ping and Pong are consumed
// here; everything else becomes a Message event.
func (p *Peer) handleMessage(raw []byte, events []Event) ([]Event, error) {
	msg, err := wire.Decode(raw)
	if err != nil {
		return events, err
	}
	p.awaiting = false

	switch m := msg.(type) {
	case *wire.Ping:
		if m.NumPongBytes <= constants.MaxPongBytes {
			pong, err := wire.Encode(wire.NewPong(m.NumPongBytes))
			if err != nil {
				return events, err
			}
			p.queue = append(p.queue, pong)
		}
		return events, nil
	case *wire.Pong:
		p.pingOutstanding = false
		return events, nil
	case *wire.Init:
		if hasFeature(m.GlobalFeatures, initialRoutingSync) || hasFeature(m.Features, initialRoutingSync) {
			p.sync = SyncStatus{State: ChannelsSyncing}
		}
	}

	return append(events, Message{
		Type:    msg.MsgType(),
		Payload: raw[constants.MessageTypeSize:],
		Msg:     msg,
	}), nil
}

// Enqueue encodes msg and queues it behind earlier messages. It is allowed
// while handshaking; the queue is framed once the peer is established.
func (p *Peer) Enqueue(msg wire.Message) error {
	if p.closed {
		return useAfterClose("enqueue")
	}
	if p.state == StateDisconnected {
		return qerrors.ErrPeerDisconnected
	}
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	p.queue = append(p.queue, b)
	return nil
}

// SendMessage frames msg after anything already queued and returns the
// bytes to write.
func (p *Peer) SendMessage(msg wire.Message) ([]byte, error) {
	if p.closed {
		return nil, useAfterClose("send")
	}
	switch p.state {
	case StateDisconnected:
		return nil, qerrors.ErrPeerDisconnected
	case StateHandshaking:
		return nil, qerrors.NewProtocolError("send", qerrors.ErrInvalidState)
	}
	if err := p.Enqueue(msg); err != nil {
		return nil, err
	}
	return p.drain()
}

// Send is SendMessage for a raw type and payload.
func (p *Peer) Send(t wire.MessageType, payload []byte) ([]byte, error) {
	return p.SendMessage(&wire.Unknown{Type: t, Payload: payload})
}

// Flush frames every queued message. It returns nothing while handshaking.
func (p *Peer) Flush() ([]byte, error) {
	if p.closed {
		return nil, useAfterClose("flush")
	}
	switch p.state {
	case StateDisconnected:
		return nil, qerrors.ErrPeerDisconnected
	case StateHandshaking:
		return nil, nil
	}
	return p.drain()
}

func (p *Peer) flushInto(events []Event) []Event {
	out, err := p.drain()
	if err != nil {
		return p.disconnect(events, err)
	}
	if len(out) > 0 {
		events = append(events, SendBytes{Data: out})
	}
	return events
}

// drain frames the queue in order. A cipher failure tears the peer down.
func (p *Peer) drain() ([]byte, error) {
	var out []byte
	for len(p.queue) > 0 {
		frame, err := p.encrypt(p.queue[0])
		if err != nil {
			p.teardown(err)
			return nil, err
		}
		out = append(out, frame...)
		p.queue[0] = nil
		p.queue = p.queue[1:]
	}
	p.queue = nil
	return out, nil
}

func (p *Peer) encrypt(msg []byte) ([]byte, error) {
	_, done := p.observer.OnEncrypt(p.ctx, len(msg))
	before := p.conduit.Rotations(transport.Outbound)
	frame, err := p.conduit.Encrypt(msg)
	done(err)
	p.noteRotations(transport.Outbound, before)
	return frame, err
}

func (p *Peer) noteRotations(d transport.Direction, before uint64) {
	if p.conduit == nil {
		return
	}
	for n := p.conduit.Rotations(d); before < n; before++ {
		p.observer.OnKeyRotation(d.String())
		p.logger.Debug("key rotated", metrics.Fields{"direction": d.String(), "rotations": before + 1})
	}
}

// Tick is the liveness timer, called by the host about every 30 seconds.
// The first tick arms the check and queues a Ping on an established peer;
// a second tick with no inbound progress since disconnects with Timeout.
// Tick never emits SendBytes: the Ping goes out with the next flush.
func (p *Peer) Tick() []Event {
	if p.closed {
		return []Event{newDisconnect(useAfterClose("tick"))}
	}
	if p.state == StateDisconnected {
		return nil
	}
	if p.awaiting {
		return p.disconnect(nil, qerrors.ErrTimeout)
	}
	p.awaiting = true

	if p.state == StateEstablished && !p.pingOutstanding {
		ping, err := wire.Encode(wire.NewPing(0))
		if err != nil {
			return p.disconnect(nil, err)
		}
		p.queue = append(p.queue, ping)
		p.pingOutstanding = true
	}
	return nil
}

// Close releases the peer. It must be called exactly once; a second call
// is a host violation. Close emits no event.
func (p *Peer) Close() error {
	if p.closed {
		return useAfterClose("close")
	}
	p.closed = true
	if p.state != StateDisconnected {
		p.teardown(qerrors.ErrPeerClosed)
	}
	return nil
}

// useAfterClose reports a call made on a peer the host already closed.
// Peers torn down by the core itself report ErrPeerDisconnected instead.
func useAfterClose(op string) error {
	return qerrors.NewProtocolError(op, qerrors.ErrHostViolation)
}

func (p *Peer) disconnect(events []Event, err error) []Event {
	p.teardown(err)
	return append(events, newDisconnect(err))
}

// teardown moves the peer to Disconnected, drops buffers and zeroizes keys.
func (p *Peer) teardown(err error) {
	if p.state == StateDisconnected {
		return
	}
	p.state = StateDisconnected
	p.reason = err
	p.queue = nil

	if p.hs != nil {
		p.hs.Abort()
		p.hs = nil
		p.hsDone(err)
	}
	if p.conduit != nil {
		p.conduit.Close()
	}

	kind := qerrors.KindOf(err)
	switch kind {
	case qerrors.KindAuthFail:
		p.observer.OnAuthFailure()
	case qerrors.KindUnsupportedVersion, qerrors.KindInvalidPoint, qerrors.KindMalformedMessage,
		qerrors.KindNonceExhausted, qerrors.KindWrongState:
		p.observer.OnProtocolError(err)
	}
	p.observer.OnDisconnect(err)

	fields := metrics.Fields{"reason": kind.String(), "error": err.Error()}
	switch kind {
	case qerrors.KindTimeout, qerrors.KindClosed:
		p.logger.Info("peer disconnected", fields)
	default:
		p.logger.Warn("peer disconnected", fields)
	}
}
