package metrics

import (
	"sync"
	"sync/atomic"
)

// NodeObserver records manager-level events: peers joining and leaving,
// and connections refused by the rate limiter or the peer cap. It
// satisfies peer.ManagerObserver.
type NodeObserver struct {
	collector *Collector
	logger    *Logger

	mu        sync.Mutex
	connected map[string]struct{}

	rateLimited atomic.Uint64
	refused     atomic.Uint64
	dropped     atomic.Uint64
}

// NodeObserverConfig configures a node observer.
type NodeObserverConfig struct {
	Collector *Collector
	Logger    *Logger
	NodeName  string
}

// NewNodeObserver creates a node observer.
func NewNodeObserver(cfg NodeObserverConfig) *NodeObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	logger := cfg.Logger.Named("node")
	if cfg.NodeName != "" {
		logger = logger.With(Fields{"node": cfg.NodeName})
	}

	return &NodeObserver{
		collector: cfg.Collector,
		logger:    logger,
		connected: make(map[string]struct{}),
	}
}

// OnPeerConnected counts a peer whose Init exchange completed.
func (o *NodeObserver) OnPeerConnected(nodeID string) {
	o.mu.Lock()
	_, dup := o.connected[nodeID]
	o.connected[nodeID] = struct{}{}
	o.mu.Unlock()
	if dup {
		return
	}

	o.collector.PeerConnected()
	o.logger.Info("peer connected", Fields{"peer": nodeID})
}

// OnPeerDisconnected releases a peer. Peers that never connected (empty or
// unknown id) only bump the dropped counter.
func (o *NodeObserver) OnPeerDisconnected(nodeID string, err error) {
	o.mu.Lock()
	_, ok := o.connected[nodeID]
	delete(o.connected, nodeID)
	o.mu.Unlock()

	fields := Fields{"peer": nodeID}
	if err != nil {
		fields["error"] = err.Error()
	}
	if !ok {
		o.dropped.Add(1)
		o.logger.Debug("connection dropped before init", fields)
		return
	}

	o.collector.PeerDisconnected()
	o.logger.Info("peer disconnected", fields)
}

// OnHandshakeRateLimit records an inbound connection refused by the
// handshake rate limiter.
func (o *NodeObserver) OnHandshakeRateLimit() {
	o.rateLimited.Add(1)
	o.collector.RecordHandshakeRateLimit()
	o.logger.Warn("handshake rate limit exceeded")
}

// OnPeerLimit records a connection refused because the peer table is full.
func (o *NodeObserver) OnPeerLimit() {
	o.refused.Add(1)
	o.collector.RecordPeerLimit()
	o.logger.Warn("peer limit reached")
}

// Connected returns the number of peers currently counted as connected.
func (o *NodeObserver) Connected() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.connected)
}

// NodeObserverSnapshot is a point-in-time view of a node observer.
type NodeObserverSnapshot struct {
	Connected   int
	RateLimited uint64
	Refused     uint64
	Dropped     uint64
}

// Snapshot returns the observer's own counters.
func (o *NodeObserver) Snapshot() NodeObserverSnapshot {
	return NodeObserverSnapshot{
		Connected:   o.Connected(),
		RateLimited: o.rateLimited.Load(),
		Refused:     o.refused.Load(),
		Dropped:     o.dropped.Load(),
	}
}
