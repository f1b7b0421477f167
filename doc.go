// Package bolt8 is a Lightning Network peer transport: the BOLT #8 Noise_XK
// handshake over secp256k1, the encrypted and length-framed message stream
// with key rotation every 1000 messages, the BOLT #1 message codec, and a
// peer manager that drives many connections for a host.
//
// # Quick Start
//
// The Manager does no I/O of its own. The host owns the sockets and feeds
// the Manager events; the Manager writes back through SocketDescriptor:
//
//	import "github.com/pzverkov/bolt8/pkg/peer"
//
//	keys := peer.KeysFuncs{NodeSecretFn: func() crypto.PrivateKey { return secret }}
//	m, _ := peer.NewManager(keys, channelHandler, routingHandler, peer.DefaultManagerConfig())
//
//	// Outbound: write act one, then pump reads.
//	act, _ := m.NewOutboundConnection(remoteNodeID, desc)
//	desc.SendData(act)
//
//	// Inbound: register the socket, then pump reads.
//	_ = m.NewInboundConnection(desc)
//
//	// For every read:
//	if err := m.ReadEvent(desc, data); err != nil {
//		conn.Close()
//	}
//
//	// Every 30 seconds:
//	m.TimerTick()
//
// For the handshake and framing alone:
//
//	import "github.com/pzverkov/bolt8/pkg/handshake"
//
//	h, _ := handshake.NewInitiator(localStatic, crypto.PrivateKey{}, remoteStatic)
//	act1, _ := h.ActOne()
//	act3, res, _ := h.ProcessActTwo(act2)
//	frame, _ := res.Conduit.Encrypt(msg)
//
// # Package Structure
//
//   - pkg/crypto: secp256k1 keys and ECDH, SHA-256, HKDF, ChaCha20-Poly1305
//   - pkg/handshake: the three-act Noise_XK handshake state machine
//   - pkg/transport: the Conduit, encrypted framing and key rotation
//   - pkg/wire: BOLT #1 message types and their codec
//   - pkg/peer: a single Peer and the Manager with its host interfaces
//   - pkg/metrics: logging, counters, tracing and Prometheus/health export
//   - pkg/version: library version
//   - internal/constants: protocol sizes and limits
//   - internal/errors: sentinel errors and failure kinds
//   - internal/vectors: BOLT #8 Appendix A test vectors
//
// # Security Properties
//
//   - Mutual authentication: the initiator must know the responder's node
//     id; the responder learns the initiator's in act three
//   - Forward secrecy: one ephemeral key per connection
//   - Identity hiding: the initiator's static key travels encrypted
//   - Key rotation: both directions re-key every 1000 nonces
//
// # Testing
//
//	go test ./...                                      # All tests
//	go test -fuzz=FuzzDecodeMessage ./test/fuzz/      # Fuzz tests
//	go test -run Vectors ./pkg/handshake ./pkg/transport
//	go test -bench=. ./test/benchmark                 # Benchmarks
//	bolt8 vectors --verbose                           # Replay test vectors
//
// # References
//
//   - BOLT #8: Encrypted and Authenticated Transport
//   - BOLT #1: Base Protocol
//   - The Noise Protocol Framework, revision 34
package bolt8
