package metrics

import (
	"sync/atomic"
	"time"
)

// Collector aggregates metrics from peers and the peer manager.
type Collector struct {
	// Peer metrics
	peersActive      atomic.Uint64
	peersTotal       atomic.Uint64
	handshakesTotal  atomic.Uint64
	handshakesFailed atomic.Uint64
	handshakeLatency *Histogram

	// Traffic metrics
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	messagesSent     atomic.Uint64
	readsProcessed   atomic.Uint64
	keyRotationsSent atomic.Uint64
	keyRotationsRecv atomic.Uint64

	// Security metrics
	authFailures        atomic.Uint64
	handshakeRateLimits atomic.Uint64
	peerLimitRejections atomic.Uint64

	// Error metrics
	encryptErrors  atomic.Uint64
	decryptErrors  atomic.Uint64
	protocolErrors atomic.Uint64
	disconnects    atomic.Uint64
	timeouts       atomic.Uint64

	// Performance histograms
	encryptLatency *Histogram
	decryptLatency *Histogram

	createdAt atomic.Int64 // unix nanoseconds, moved by Reset
	labels    Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	c := &Collector{
		handshakeLatency: NewHistogram(HandshakeLatencyBuckets),
		encryptLatency:   NewHistogram(LatencyBuckets),
		decryptLatency:   NewHistogram(LatencyBuckets),
		labels:           labels,
	}
	c.createdAt.Store(time.Now().UnixNano())
	return c
}

// Default bucket configurations for histograms.
var (
	// HandshakeLatencyBuckets for handshake duration (milliseconds).
	HandshakeLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000}

	// LatencyBuckets for encrypt/decrypt operations (microseconds).
	LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// --- Peer Metrics ---

// PeerConnected increments active and total peer counters.
func (c *Collector) PeerConnected() {
	c.peersActive.Add(1)
	c.peersTotal.Add(1)
}

// PeerDisconnected decrements the active peer counter.
func (c *Collector) PeerDisconnected() {
	for {
		current := c.peersActive.Load()
		if current == 0 {
			return
		}
		if c.peersActive.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// HandshakeStarted counts a handshake attempt.
func (c *Collector) HandshakeStarted() {
	c.handshakesTotal.Add(1)
}

// HandshakeFailed records a handshake that did not complete.
func (c *Collector) HandshakeFailed() {
	c.handshakesFailed.Add(1)
}

// RecordHandshakeLatency records a handshake duration.
func (c *Collector) RecordHandshakeLatency(d time.Duration) {
	c.handshakeLatency.ObserveDuration(d, time.Millisecond)
}

// --- Traffic Metrics ---

// RecordMessageSent counts one framed message of n plaintext bytes.
func (c *Collector) RecordMessageSent(n int) {
	c.messagesSent.Add(1)
	c.bytesSent.Add(uint64(n))
}

// RecordBytesReceived counts one read of n ciphertext bytes.
func (c *Collector) RecordBytesReceived(n int) {
	c.readsProcessed.Add(1)
	c.bytesReceived.Add(uint64(n))
}

// RecordKeyRotation counts a key rotation in the given direction,
// "outbound" or "inbound".
func (c *Collector) RecordKeyRotation(direction string) {
	if direction == "outbound" {
		c.keyRotationsSent.Add(1)
		return
	}
	c.keyRotationsRecv.Add(1)
}

// --- Security Metrics ---

// RecordAuthFailure increments the authentication failure counter.
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Add(1)
}

// RecordHandshakeRateLimit counts an inbound connection refused by the
// handshake rate limiter.
func (c *Collector) RecordHandshakeRateLimit() {
	c.handshakeRateLimits.Add(1)
}

// RecordPeerLimit counts a connection refused because the peer table is
// full.
func (c *Collector) RecordPeerLimit() {
	c.peerLimitRejections.Add(1)
}

// --- Error Metrics ---

// RecordEncryptError increments encryption error counter.
func (c *Collector) RecordEncryptError() {
	c.encryptErrors.Add(1)
}

// RecordDecryptError increments decryption error counter.
func (c *Collector) RecordDecryptError() {
	c.decryptErrors.Add(1)
}

// RecordProtocolError increments protocol error counter.
func (c *Collector) RecordProtocolError() {
	c.protocolErrors.Add(1)
}

// RecordDisconnect counts a peer teardown. timeout marks liveness failures.
func (c *Collector) RecordDisconnect(timeout bool) {
	c.disconnects.Add(1)
	if timeout {
		c.timeouts.Add(1)
	}
}

// --- Performance Metrics ---

// RecordEncryptLatency records encryption operation latency.
func (c *Collector) RecordEncryptLatency(d time.Duration) {
	c.encryptLatency.ObserveDuration(d, time.Microsecond)
}

// RecordDecryptLatency records decryption operation latency.
func (c *Collector) RecordDecryptLatency(d time.Duration) {
	c.decryptLatency.ObserveDuration(d, time.Microsecond)
}

// --- Snapshot ---

// Snapshot is a point-in-time copy of all metrics. It is also the body of
// /metrics.json.
type Snapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime_ns"`

	PeersActive      uint64 `json:"peers_active"`
	PeersTotal       uint64 `json:"peers_total"`
	HandshakesTotal  uint64 `json:"handshakes_total"`
	HandshakesFailed uint64 `json:"handshakes_failed"`

	BytesSent        uint64 `json:"bytes_sent"`
	BytesReceived    uint64 `json:"bytes_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	ReadsProcessed   uint64 `json:"reads_processed"`
	KeyRotationsSent uint64 `json:"key_rotations_sent"`
	KeyRotationsRecv uint64 `json:"key_rotations_received"`

	AuthFailures        uint64 `json:"auth_failures"`
	HandshakeRateLimits uint64 `json:"handshake_rate_limits"`
	PeerLimitRejections uint64 `json:"peer_limit_rejections"`

	EncryptErrors  uint64 `json:"encrypt_errors"`
	DecryptErrors  uint64 `json:"decrypt_errors"`
	ProtocolErrors uint64 `json:"protocol_errors"`
	Disconnects    uint64 `json:"disconnects"`
	Timeouts       uint64 `json:"timeouts"`

	HandshakeLatency HistogramSummary `json:"handshake_latency_ms"`
	EncryptLatency   HistogramSummary `json:"encrypt_latency_us"`
	DecryptLatency   HistogramSummary `json:"decrypt_latency_us"`

	Labels Labels `json:"labels,omitempty"`
}

// ErrorRate is failed cipher and codec operations over all framed and read
// messages, or 0 before any traffic.
func (s Snapshot) ErrorRate() float64 {
	ops := s.MessagesSent + s.ReadsProcessed
	if ops == 0 {
		return 0
	}
	return float64(s.EncryptErrors+s.DecryptErrors+s.ProtocolErrors) / float64(ops)
}

// HandshakeFailureRatio is failed over started handshakes, or 0 before any.
func (s Snapshot) HandshakeFailureRatio() float64 {
	if s.HandshakesTotal == 0 {
		return 0
	}
	return float64(s.HandshakesFailed) / float64(s.HandshakesTotal)
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	now := time.Now()
	return Snapshot{
		Timestamp:           now,
		Uptime:              now.Sub(time.Unix(0, c.createdAt.Load())),
		PeersActive:         c.peersActive.Load(),
		PeersTotal:          c.peersTotal.Load(),
		HandshakesTotal:     c.handshakesTotal.Load(),
		HandshakesFailed:    c.handshakesFailed.Load(),
		BytesSent:           c.bytesSent.Load(),
		BytesReceived:       c.bytesReceived.Load(),
		MessagesSent:        c.messagesSent.Load(),
		ReadsProcessed:      c.readsProcessed.Load(),
		KeyRotationsSent:    c.keyRotationsSent.Load(),
		KeyRotationsRecv:    c.keyRotationsRecv.Load(),
		AuthFailures:        c.authFailures.Load(),
		HandshakeRateLimits: c.handshakeRateLimits.Load(),
		PeerLimitRejections: c.peerLimitRejections.Load(),
		EncryptErrors:       c.encryptErrors.Load(),
		DecryptErrors:       c.decryptErrors.Load(),
		ProtocolErrors:      c.protocolErrors.Load(),
		Disconnects:         c.disconnects.Load(),
		Timeouts:            c.timeouts.Load(),
		HandshakeLatency:    c.handshakeLatency.Summary(),
		EncryptLatency:      c.encryptLatency.Summary(),
		DecryptLatency:      c.decryptLatency.Summary(),
		Labels:              c.labels,
	}
}

// Reset zeroes every counter and histogram and restarts the uptime clock.
func (c *Collector) Reset() {
	for _, v := range []*atomic.Uint64{
		&c.peersActive, &c.peersTotal, &c.handshakesTotal, &c.handshakesFailed,
		&c.bytesSent, &c.bytesReceived, &c.messagesSent, &c.readsProcessed,
		&c.keyRotationsSent, &c.keyRotationsRecv,
		&c.authFailures, &c.handshakeRateLimits, &c.peerLimitRejections,
		&c.encryptErrors, &c.decryptErrors, &c.protocolErrors, &c.disconnects, &c.timeouts,
	} {
		v.Store(0)
	}
	c.handshakeLatency.Reset()
	c.encryptLatency.Reset()
	c.decryptLatency.Reset()
	c.createdAt.Store(time.Now().UnixNano())
}

// --- Global Collector ---

var globalCollector atomic.Pointer[Collector]

// Global returns the process-wide collector, creating it on first use.
func Global() *Collector {
	if c := globalCollector.Load(); c != nil {
		return c
	}
	globalCollector.CompareAndSwap(nil, NewCollector(Labels{"instance": "default"}))
	return globalCollector.Load()
}

// SetGlobal replaces the process-wide collector. Observers built earlier
// keep the collector they were given.
func SetGlobal(c *Collector) {
	globalCollector.Store(c)
}
