package peer

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/wire"
)

// ManagerConfig holds configuration for a Manager.
type ManagerConfig struct {
	// HandshakeRate is the number of inbound handshakes admitted per second.
	// 0 means no limit.
	HandshakeRate float64

	// HandshakeBurst is the maximum burst of inbound handshakes.
	// If 0, defaults to 1 when HandshakeRate is set.
	HandshakeBurst int

	// MaxPeers caps the number of connections, handshaking or not.
	// 0 means no limit.
	MaxPeers int

	// Features is the feature vector sent in our Init.
	Features []byte

	// Peer is applied to every connection.
	Peer Config

	// Observer receives Manager-level events. Optional.
	Observer ManagerObserver

	// Logger receives Manager logs. Default: the global logger.
	Logger *metrics.Logger
}

// DefaultManagerConfig returns the default Manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Peer: DefaultConfig(),
	}
}

// Validate checks the configuration for errors.
func (c *ManagerConfig) Validate() error {
	if c.HandshakeRate < 0 {
		return errors.New("manager: HandshakeRate cannot be negative")
	}
	if c.HandshakeBurst < 0 {
		return errors.New("manager: HandshakeBurst cannot be negative")
	}
	if c.MaxPeers < 0 {
		return errors.New("manager: MaxPeers cannot be negative")
	}
	return c.Peer.Validate()
}

// Manager owns every peer of a node. Peers are keyed by their socket
// descriptor and, once the handshake completes, by node id.
//
// Handlers run after the peer's lock is released, so they may call back
// into the Manager (SendMessage, WithPeer, DisconnectPeer).
type Manager struct {
	keys    KeysInterface
	channel ChannelMessageHandler
	routing RoutingMessageHandler

	cfg      ManagerConfig
	limiter  *rate.Limiter
	observer ManagerObserver
	logger   *metrics.Logger

	mu     sync.Mutex
	peers  map[SocketDescriptor]*peerHandle
	nodes  map[crypto.PublicKey]SocketDescriptor
	closed bool
}

// peerHandle serializes access to one peer.
type peerHandle struct {
	mu   sync.Mutex
	peer *Peer
	desc SocketDescriptor

	// pending holds framed bytes the socket did not accept yet.
	pending []byte

	nodeID    crypto.PublicKey
	hasNode   bool
	connected bool // Init received and PeerConnected called
	done      bool
}

// NewManager creates a Manager. Nil handlers ignore every message.
func NewManager(keys KeysInterface, channel ChannelMessageHandler, routing RoutingMessageHandler, cfg ManagerConfig) (*Manager, error) {
	if keys == nil {
		return nil, errors.New("manager: keys are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if channel == nil {
		channel = ChannelMessageHandlerFuncs{}
	}
	if routing == nil {
		routing = RoutingMessageHandlerFuncs{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NoOpObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = metrics.GetLogger()
	}
	if cfg.Peer.Logger == nil {
		cfg.Peer.Logger = cfg.Logger
	}
	if _, err := keys.NodeSecret().PublicKey(); err != nil {
		return nil, qerrors.NewCryptoError("node secret", err)
	}

	m := &Manager{
		keys:     keys,
		channel:  channel,
		routing:  routing,
		cfg:      cfg,
		observer: cfg.Observer,
		logger:   cfg.Logger.Named("manager"),
		peers:    make(map[SocketDescriptor]*peerHandle),
		nodes:    make(map[crypto.PublicKey]SocketDescriptor),
	}
	if cfg.HandshakeRate > 0 {
		burst := cfg.HandshakeBurst
		if burst == 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.HandshakeRate), burst)
	}
	return m, nil
}

// NodeID returns the public key of this node.
func (m *Manager) NodeID() crypto.PublicKey {
	pub, _ := m.keys.NodeSecret().PublicKey()
	return pub
}

// NewOutboundConnection registers a connection to remote and returns act
// one, which the host must write before anything else.
func (m *Manager) NewOutboundConnection(remote crypto.PublicKey, desc SocketDescriptor) ([]byte, error) {
	eph, err := m.keys.EphemeralKey()
	if err != nil {
		return nil, err
	}
	p, act, err := NewOutbound(m.keys.NodeSecret(), eph, remote, WithConfig(m.cfg.Peer))
	if err != nil {
		return nil, err
	}
	if err := m.add(desc, p); err != nil {
		_ = p.Close()
		return nil, err
	}
	m.logger.Debug("outbound connection", metrics.Fields{"node_id": remote.String()})
	return act, nil
}

// NewInboundConnection registers a connection accepted from the network.
// It is refused with ErrRateLimited when handshakes arrive too fast.
func (m *Manager) NewInboundConnection(desc SocketDescriptor) error {
	if m.limiter != nil && !m.limiter.Allow() {
		m.observer.OnHandshakeRateLimit()
		m.logger.Warn("inbound handshake rate limited")
		return qerrors.ErrRateLimited
	}
	eph, err := m.keys.EphemeralKey()
	if err != nil {
		return err
	}
	p, err := NewInbound(m.keys.NodeSecret(), eph, WithConfig(m.cfg.Peer))
	if err != nil {
		return err
	}
	if err := m.add(desc, p); err != nil {
		_ = p.Close()
		return err
	}
	return nil
}

func (m *Manager) add(desc SocketDescriptor, p *Peer) error {
	if err := p.Enqueue(&wire.Init{Features: m.cfg.Features}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qerrors.ErrPeerClosed
	}
	if _, ok := m.peers[desc]; ok {
		return qerrors.ErrDuplicatePeer
	}
	if m.cfg.MaxPeers > 0 && len(m.peers) >= m.cfg.MaxPeers {
		m.observer.OnPeerLimit()
		return qerrors.ErrTooManyPeers
	}
	m.peers[desc] = &peerHandle{peer: p, desc: desc}
	return nil
}

func (m *Manager) lookup(desc SocketDescriptor) (*peerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.peers[desc]
	if !ok {
		return nil, qerrors.ErrPeerNotFound
	}
	return h, nil
}

func (m *Manager) lookupNode(nodeID crypto.PublicKey) (*peerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	desc, ok := m.nodes[nodeID]
	if !ok {
		return nil, qerrors.ErrPeerNotFound
	}
	return m.peers[desc], nil
}

// register binds a node id to desc. A second connection from the same
// node is refused.
func (m *Manager) register(nodeID crypto.PublicKey, desc SocketDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if other, ok := m.nodes[nodeID]; ok && other != desc {
		return qerrors.ErrDuplicatePeer
	}
	m.nodes[nodeID] = desc
	return nil
}

// ReadEvent feeds bytes read from desc. A non-nil error means the peer has
// been dropped and the host should close the socket; DisconnectEvent must
// not be called for it.
func (m *Manager) ReadEvent(desc SocketDescriptor, data []byte) error {
	h, err := m.lookup(desc)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return qerrors.ErrPeerNotFound
	}
	var (
		msgs      []wire.Message
		failure   error
		duplicate bool
	)
	for _, ev := range h.peer.FeedBytes(data) {
		switch e := ev.(type) {
		case SendBytes:
			h.pending = append(h.pending, e.Data...)
		case HandshakeComplete:
			if err := m.register(e.RemoteStatic, desc); err != nil {
				failure, duplicate = err, true
			} else {
				h.nodeID, h.hasNode = e.RemoteStatic, true
			}
		case Message:
			msgs = append(msgs, e.Msg)
		case Disconnect:
			failure = e.Err
		}
	}
	if !duplicate {
		h.writePending()
	}
	nodeID := h.nodeID
	h.mu.Unlock()

	if !duplicate {
		for _, msg := range msgs {
			if err := m.dispatch(nodeID, h, msg); err != nil {
				m.finish(h, err, false)
				return err
			}
		}
	}
	if failure != nil {
		m.finish(h, failure, false)
		return failure
	}
	return nil
}

// dispatch hands one message to the host handlers. The first message of a
// connection must be Init.
func (m *Manager) dispatch(nodeID crypto.PublicKey, h *peerHandle, msg wire.Message) error {
	h.mu.Lock()
	connected := h.connected
	if _, ok := msg.(*wire.Init); ok && !connected {
		h.connected = true
	}
	h.mu.Unlock()

	if init, ok := msg.(*wire.Init); ok {
		if connected {
			return &DisconnectError{Err: "duplicate init"}
		}
		m.observer.OnPeerConnected(nodeID.String())
		m.logger.Info("peer connected", metrics.Fields{"node_id": nodeID.String()})
		return m.channel.PeerConnected(nodeID, init)
	}
	if !connected {
		return &DisconnectError{Err: "message before init: " + msg.MsgType().String()}
	}

	switch v := msg.(type) {
	case *wire.Error:
		if err := m.channel.HandleError(nodeID, v); err != nil {
			return err
		}
		if v.ChannelID == (wire.Hash{}) {
			return &DisconnectError{Err: v.Error()}
		}
		return nil
	case *wire.QueryChannelRange:
		return m.routing.HandleQueryChannelRange(nodeID, v)
	default:
		return m.channel.HandleMessage(nodeID, msg)
	}
}

// WriteEvent tells the Manager that desc can accept data again.
func (m *Manager) WriteEvent(desc SocketDescriptor) error {
	h, err := m.lookup(desc)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writePending()
	return nil
}

// writePending pushes buffered output to the socket. Caller holds h.mu.
func (h *peerHandle) writePending() {
	if len(h.pending) == 0 {
		return
	}
	n := h.desc.SendData(h.pending)
	if n < 0 {
		n = 0
	}
	if n >= len(h.pending) {
		h.pending = nil
		return
	}
	h.pending = append(h.pending[:0], h.pending[n:]...)
}

// Pending returns the number of bytes waiting for desc to accept them.
func (m *Manager) Pending(desc SocketDescriptor) int {
	h, err := m.lookup(desc)
	if err != nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// SendMessage frames msg for the peer with the given node id.
func (m *Manager) SendMessage(nodeID crypto.PublicKey, msg wire.Message) error {
	return m.WithPeer(nodeID, func(p *Peer) error {
		return p.Enqueue(msg)
	})
}

// WithPeer runs fn with exclusive access to the peer of nodeID, then
// flushes anything fn queued.
func (m *Manager) WithPeer(nodeID crypto.PublicKey, fn func(p *Peer) error) error {
	h, err := m.lookupNode(nodeID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return qerrors.ErrPeerNotFound
	}
	err = fn(h.peer)
	out, ferr := h.peer.Flush()
	h.pending = append(h.pending, out...)
	h.writePending()
	h.mu.Unlock()

	if ferr != nil {
		m.finish(h, ferr, true)
		return ferr
	}
	return err
}

// TimerTick drives liveness on every peer. It should be called about every
// 30 seconds. Timed-out peers are dropped and their sockets closed.
func (m *Manager) TimerTick() {
	for _, h := range m.handles() {
		h.mu.Lock()
		if h.done {
			h.mu.Unlock()
			continue
		}
		var failure error
		for _, ev := range h.peer.Tick() {
			if d, ok := ev.(Disconnect); ok {
				failure = d.Err
			}
		}
		if failure == nil {
			out, err := h.peer.Flush()
			h.pending = append(h.pending, out...)
			h.writePending()
			failure = err
		}
		h.mu.Unlock()

		if failure != nil {
			m.finish(h, failure, true)
		}
	}
}

// DisconnectEvent tells the Manager that the host closed desc.
func (m *Manager) DisconnectEvent(desc SocketDescriptor) error {
	h, err := m.lookup(desc)
	if err != nil {
		return err
	}
	m.finish(h, qerrors.ErrPeerClosed, false)
	return nil
}

// DisconnectPeer drops the peer of nodeID and closes its socket. If msg is
// non-nil it is sent first.
func (m *Manager) DisconnectPeer(nodeID crypto.PublicKey, msg *wire.Error) error {
	h, err := m.lookupNode(nodeID)
	if err != nil {
		return err
	}
	reason := "disconnect requested"
	if msg != nil {
		reason = msg.Error()
	}
	m.finish(h, &DisconnectError{Err: reason, Msg: msg}, true)
	return nil
}

// PeerNodeIDs returns the node ids of every peer that completed the
// handshake, in byte order.
func (m *Manager) PeerNodeIDs() []crypto.PublicKey {
	m.mu.Lock()
	ids := make([]crypto.PublicKey, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// PeerCount returns the number of connections, handshaking or not.
func (m *Manager) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// Close drops every peer and closes their sockets. New connections are
// refused afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, h := range m.handles() {
		m.finish(h, qerrors.ErrPeerClosed, true)
	}
}

func (m *Manager) handles() []*peerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	hs := make([]*peerHandle, 0, len(m.peers))
	for _, h := range m.peers {
		hs = append(hs, h)
	}
	return hs
}

// finish drops a peer exactly once: the peer is closed, the Manager forgets
// it and the handlers are told.
func (m *Manager) finish(h *peerHandle, cause error, closeSocket bool) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true

	var de *DisconnectError
	if errors.As(cause, &de) && de.Msg != nil && h.peer.IsEstablished() {
		if out, err := h.peer.SendMessage(de.Msg); err == nil {
			h.pending = append(h.pending, out...)
			h.writePending()
		}
	}
	_ = h.peer.Close()
	nodeID, hasNode, connected := h.nodeID, h.hasNode, h.connected
	h.mu.Unlock()

	m.mu.Lock()
	if cur, ok := m.peers[h.desc]; ok && cur == h {
		delete(m.peers, h.desc)
	}
	if hasNode && m.nodes[nodeID] == h.desc {
		delete(m.nodes, nodeID)
	}
	m.mu.Unlock()

	if closeSocket {
		h.desc.DisconnectSocket()
	}
	if connected {
		m.channel.PeerDisconnected(nodeID)
	}
	id := ""
	if hasNode {
		id = nodeID.String()
	}
	m.observer.OnPeerDisconnected(id, cause)
	m.logger.Debug("peer dropped", metrics.Fields{
		"node_id": id,
		"reason":  qerrors.KindOf(cause).String(),
	})
}
