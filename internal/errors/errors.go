// Package errors defines the error taxonomy of the BOLT #8 peer transport.
//
// Errors are sentinels grouped by layer. Callers classify them with KindOf,
// which maps any error chain onto one of the protocol-level kinds reported in
// Disconnect events. Messages never include key material.
package errors

import (
	"errors"
	"fmt"
)

// Primitive failures.
var (
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidPrivateKey indicates a scalar that is zero or not below the curve order
	ErrInvalidPrivateKey = errors.New("crypto: invalid private key")

	// ErrInvalidPoint indicates that a public key does not decode to a curve point
	ErrInvalidPoint = errors.New("crypto: invalid point")

	// ErrAuthenticationFailed is returned for any tag mismatch. The cause
	// is never more specific.
	ErrAuthenticationFailed = errors.New("aead: authentication failed")

	// ErrNonceExhausted indicates a nonce counter passed the rotation boundary
	ErrNonceExhausted = errors.New("aead: nonce space exhausted")
)

// Handshake state machine.
var (
	// ErrUnsupportedVersion indicates an act carried a version other than zero
	ErrUnsupportedVersion = errors.New("handshake: unsupported version")

	// ErrInvalidState indicates an operation was invoked in the wrong state
	ErrInvalidState = errors.New("handshake: wrong state")

	// ErrShortInput indicates not enough bytes are buffered yet. It is never fatal.
	ErrShortInput = errors.New("handshake: short input")
)

// Framing and the message codec. Every codec error matches
// ErrMalformedMessage.
var (
	// ErrMalformedMessage indicates a message that does not match its schema
	ErrMalformedMessage = errors.New("wire: malformed message")

	// ErrShortField indicates a field ran past the end of the payload
	ErrShortField = fmt.Errorf("%w: short field", ErrMalformedMessage)

	// ErrExtraBytes indicates bytes left over after the last declared field
	ErrExtraBytes = fmt.Errorf("%w: extra bytes", ErrMalformedMessage)

	// ErrBadLength indicates a length prefix that cannot be honoured
	ErrBadLength = fmt.Errorf("%w: bad length", ErrMalformedMessage)

	// ErrMessageTooLarge indicates a message above the 65535-byte frame limit
	ErrMessageTooLarge = fmt.Errorf("%w: message too large", ErrMalformedMessage)

	// ErrUnknownMessageType indicates a type without a registered schema
	ErrUnknownMessageType = errors.New("wire: unknown message type")
)

// Peer and manager.
var (
	// ErrTimeout indicates the peer missed two consecutive liveness ticks
	ErrTimeout = errors.New("peer: timeout")

	// ErrHostViolation indicates the host broke the interface contract,
	// such as closing a peer twice or using it after close
	ErrHostViolation = errors.New("peer: host violation")

	// ErrPeerDisconnected indicates the peer already reached its terminal state
	ErrPeerDisconnected = errors.New("peer: disconnected")

	// ErrPeerClosed indicates the host closed the peer
	ErrPeerClosed = errors.New("peer: closed by host")

	// ErrPeerNotFound indicates the manager has no peer for the given key
	ErrPeerNotFound = errors.New("peer: not found")

	// ErrDuplicatePeer indicates a descriptor or node id is already registered
	ErrDuplicatePeer = errors.New("peer: duplicate")

	// ErrRateLimited indicates an inbound handshake was refused by the limiter
	ErrRateLimited = errors.New("peer: handshake rate limited")

	// ErrTooManyPeers indicates the manager reached its peer limit
	ErrTooManyPeers = errors.New("peer: too many peers")
)

// Kind classifies an error into the protocol-level taxonomy.
type Kind int

// Error kinds, in the order of the taxonomy.
const (
	KindNone Kind = iota
	KindUnsupportedVersion
	KindInvalidPoint
	KindAuthFail
	KindWrongState
	KindShortInput
	KindNonceExhausted
	KindUnknownMessageType
	KindMalformedMessage
	KindTimeout
	KindHostViolation
	KindClosed
	KindOther
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindInvalidPoint:
		return "InvalidPoint"
	case KindAuthFail:
		return "AuthFail"
	case KindWrongState:
		return "WrongState"
	case KindShortInput:
		return "ShortInput"
	case KindNonceExhausted:
		return "NonceExhausted"
	case KindUnknownMessageType:
		return "UnknownMessageType"
	case KindMalformedMessage:
		return "MalformedMessage"
	case KindTimeout:
		return "Timeout"
	case KindHostViolation:
		return "HostViolation"
	case KindClosed:
		return "Closed"
	default:
		return "Other"
	}
}

// KindOf maps err onto its taxonomy kind by walking the error chain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnsupportedVersion):
		return KindUnsupportedVersion
	case errors.Is(err, ErrInvalidPoint), errors.Is(err, ErrInvalidPrivateKey):
		return KindInvalidPoint
	case errors.Is(err, ErrAuthenticationFailed):
		return KindAuthFail
	case errors.Is(err, ErrInvalidState):
		return KindWrongState
	case errors.Is(err, ErrShortInput):
		return KindShortInput
	case errors.Is(err, ErrNonceExhausted):
		return KindNonceExhausted
	case errors.Is(err, ErrUnknownMessageType):
		return KindUnknownMessageType
	case errors.Is(err, ErrMalformedMessage):
		return KindMalformedMessage
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrHostViolation):
		return KindHostViolation
	case errors.Is(err, ErrPeerClosed):
		return KindClosed
	default:
		return KindOther
	}
}

// IsFatal reports whether err terminates the connection it occurred on.
// Short input and unknown message types are the only recoverable kinds.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindNone, KindShortInput, KindUnknownMessageType:
		return false
	default:
		return true
	}
}

// CryptoError records which primitive failed. Err is the sentinel or the
// underlying library error.
type CryptoError struct {
	Op  string
	Err error
}

// NewCryptoError wraps err under op.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

func (e *CryptoError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *CryptoError) Unwrap() error { return e.Err }

// ProtocolError records the phase of the connection in which err occurred,
// such as "act two" or "send".
type ProtocolError struct {
	Phase string
	Err   error
}

// NewProtocolError wraps err under phase.
func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}

func (e *ProtocolError) Error() string { return "protocol " + e.Phase + ": " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }
