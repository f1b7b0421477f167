// Package constants defines protocol fixtures and size parameters for the
// BOLT #8 peer transport and the BOLT #1 message framing carried over it.
//
// Every value in this package is part of the wire protocol. Changing any of
// them breaks interoperability with other Lightning implementations.
package constants

// Noise protocol identification
const (
	// ProtocolName is the full Noise protocol name hashed into the initial
	// chaining key and handshake hash.
	ProtocolName = "Noise_XK_secp256k1_ChaChaPoly_SHA256"

	// Prologue is mixed into the handshake hash right after initialization.
	Prologue = "lightning"

	// HandshakeVersion is the leading byte of every handshake act.
	HandshakeVersion byte = 0x00
)

// secp256k1 Parameters
const (
	// PrivateKeySize is the size of a secp256k1 scalar in bytes
	PrivateKeySize = 32

	// PublicKeySize is the size of a compressed secp256k1 point in bytes
	PublicKeySize = 33

	// SharedSecretSize is the size of the ECDH output (SHA-256 of the shared point)
	SharedSecretSize = 32
)

// Symmetric Parameters (ChaCha20-Poly1305, SHA-256)
const (
	// KeySize is the size of ChaCha20-Poly1305 keys and chaining keys in bytes
	KeySize = 32

	// HashSize is the size of the SHA-256 handshake hash in bytes
	HashSize = 32

	// NonceSize is the size of the ChaCha20-Poly1305 nonce in bytes.
	// The low 8 bytes carry the little-endian counter, the high 4 are zero.
	NonceSize = 12

	// TagSize is the size of the Poly1305 authentication tag in bytes
	TagSize = 16
)

// Handshake act sizes
const (
	// ActOneSize is version || e.pub || tag
	ActOneSize = 1 + PublicKeySize + TagSize

	// ActTwoSize mirrors act one from the responder
	ActTwoSize = 1 + PublicKeySize + TagSize

	// ActThreeSize is version || enc(s.pub) || tag
	ActThreeSize = 1 + PublicKeySize + TagSize + TagSize
)

// Transport framing
const (
	// LengthHeaderSize is the plaintext length prefix of a frame
	LengthHeaderSize = 2

	// EncryptedHeaderSize is the sealed length prefix of a frame
	EncryptedHeaderSize = LengthHeaderSize + TagSize

	// FrameOverhead is the number of bytes a frame adds to its message
	FrameOverhead = EncryptedHeaderSize + TagSize

	// MaxMessageSize is the largest plaintext message a frame can carry
	MaxMessageSize = 65535

	// KeyRotationInterval is the number of cipher operations after which
	// a direction's key is rotated.
	KeyRotationInterval = 1000

	// DefaultMaxReadBuffer caps the inbound accumulator of one peer. It holds
	// one maximum frame plus a maximum frame header.
	DefaultMaxReadBuffer = MaxMessageSize + FrameOverhead + EncryptedHeaderSize
)

// Message framing (BOLT #1)
const (
	// MessageTypeSize is the size of the big-endian message type prefix
	MessageTypeSize = 2

	// MaxPayloadSize is the largest payload after the type prefix
	MaxPayloadSize = MaxMessageSize - MessageTypeSize

	// MaxPongBytes is the largest num_pong_bytes a ping may request and
	// still get an answer. Pings asking for more are not answered.
	MaxPongBytes = 65531
)

// Liveness
const (
	// PingIntervalSeconds is the nominal interval between host ticks
	PingIntervalSeconds = 30
)
