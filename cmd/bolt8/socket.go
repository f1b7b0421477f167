package main

import (
	"net"
	"sync"

	"github.com/pzverkov/bolt8/pkg/peer"
)

// connSocket adapts a net.Conn to peer.SocketDescriptor. SendData never
// blocks: data is queued for writeLoop, and a full queue refuses the write
// until writeLoop catches up and calls the Manager's WriteEvent.
type connSocket struct {
	conn net.Conn

	mu      sync.Mutex
	out     chan []byte
	closed  bool
	blocked bool
}

func newConnSocket(conn net.Conn, depth int) *connSocket {
	return &connSocket{conn: conn, out: make(chan []byte, depth)}
}

func (s *connSocket) SendData(data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	select {
	case s.out <- append([]byte(nil), data...):
		return len(data)
	default:
		s.blocked = true
		return 0
	}
}

// DisconnectSocket stops accepting data. Queued data is still written
// before the connection closes.
func (s *connSocket) DisconnectSocket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

func (s *connSocket) resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.blocked
	s.blocked = false
	return b
}

// writeLoop drains the queue into the connection and closes it once the
// queue is closed.
func (s *connSocket) writeLoop(m *peer.Manager) error {
	defer func() { _ = s.conn.Close() }()

	failed := false
	for b := range s.out {
		if failed {
			continue
		}
		if _, err := s.conn.Write(b); err != nil {
			failed = true
			_ = m.DisconnectEvent(s)
			s.DisconnectSocket()
			continue
		}
		if s.resume() {
			_ = m.WriteEvent(s)
		}
	}
	return nil
}

// readLoop feeds inbound bytes to the Manager until either side gives up.
func (s *connSocket) readLoop(m *peer.Manager) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if rerr := m.ReadEvent(s, buf[:n]); rerr != nil {
				s.DisconnectSocket()
				return nil
			}
		}
		if err != nil {
			_ = m.DisconnectEvent(s)
			s.DisconnectSocket()
			return nil
		}
	}
}
