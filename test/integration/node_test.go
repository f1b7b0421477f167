// Package integration runs peer managers against each other over real
// TCP connections.
package integration

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/peer"
	"github.com/pzverkov/bolt8/pkg/wire"
)

const waitTimeout = 5 * time.Second

// tcpSocket queues writes for a dedicated writer so SendData never blocks
// while the Manager holds a peer lock.
type tcpSocket struct {
	conn net.Conn
	m    *peer.Manager

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

func newTCPSocket(conn net.Conn, m *peer.Manager) *tcpSocket {
	return &tcpSocket{conn: conn, m: m, out: make(chan []byte, 4096)}
}

func (s *tcpSocket) SendData(data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	select {
	case s.out <- append([]byte(nil), data...):
		return len(data)
	default:
		return 0
	}
}

func (s *tcpSocket) DisconnectSocket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *tcpSocket) run() {
	go func() {
		defer func() { _ = s.conn.Close() }()
		for b := range s.out {
			if _, err := s.conn.Write(b); err != nil {
				_ = s.m.DisconnectEvent(s)
				s.DisconnectSocket()
			}
		}
	}()
	go func() {
		buf := make([]byte, 16*1024)
		for {
			n, err := s.conn.Read(buf)
			if n > 0 {
				if s.m.ReadEvent(s, buf[:n]) != nil {
					s.DisconnectSocket()
					return
				}
			}
			if err != nil {
				_ = s.m.DisconnectEvent(s)
				s.DisconnectSocket()
				return
			}
		}
	}()
}

// node is a Manager plus the events its handlers saw.
type node struct {
	m *peer.Manager

	connected    chan crypto.PublicKey
	disconnected chan crypto.PublicKey
	errors       chan *wire.Error
	queries      atomic.Int64
}

func newNode(t *testing.T, cfg peer.ManagerConfig) *node {
	t.Helper()
	secret, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	n := &node{
		connected:    make(chan crypto.PublicKey, 16),
		disconnected: make(chan crypto.PublicKey, 16),
		errors:       make(chan *wire.Error, 16),
	}
	if cfg.Logger == nil {
		cfg.Logger = metrics.NewLogger(metrics.WithLevel(metrics.LevelSilent))
	}
	channel := peer.ChannelMessageHandlerFuncs{
		PeerConnectedFn: func(id crypto.PublicKey, _ *wire.Init) error {
			n.connected <- id
			return nil
		},
		PeerDisconnectedFn: func(id crypto.PublicKey) { n.disconnected <- id },
		HandleErrorFn: func(_ crypto.PublicKey, msg *wire.Error) error {
			n.errors <- msg
			return nil
		},
	}
	routing := peer.RoutingMessageHandlerFuncs{
		HandleQueryChannelRangeFn: func(crypto.PublicKey, *wire.QueryChannelRange) error {
			n.queries.Add(1)
			return nil
		},
	}
	n.m, err = peer.NewManager(peer.KeysFuncs{NodeSecretFn: func() crypto.PrivateKey { return secret }}, channel, routing, cfg)
	require.NoError(t, err)
	t.Cleanup(n.m.Close)
	return n
}

// listen accepts connections for n until the test ends.
func (n *node) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s := newTCPSocket(conn, n.m)
			if err := n.m.NewInboundConnection(s); err != nil {
				_ = conn.Close()
				continue
			}
			s.run()
		}
	}()
	return ln.Addr().String()
}

// dial connects n to the node listening on addr.
func (n *node) dial(t *testing.T, addr string, remote crypto.PublicKey) *tcpSocket {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	s := newTCPSocket(conn, n.m)
	act, err := n.m.NewOutboundConnection(remote, s)
	require.NoError(t, err)
	require.Equal(t, len(act), s.SendData(act))
	s.run()
	return s
}

func expectEvent[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
