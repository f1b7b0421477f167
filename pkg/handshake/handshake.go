// Package handshake implements the BOLT #8 Noise_XK handshake.
//
// Handshake Protocol:
//
//	Initiator                                   Responder
//	    |                                           |
//	    |  <- s (known in advance)                  |
//	    |                                           |
//	    | ------- Act One (50 bytes) -------------> |
//	    |   0x00 || e.pub || tag     (e, es)        |
//	    |                                           |
//	    | <------ Act Two (50 bytes) -------------- |
//	    |   0x00 || e.pub || tag     (e, ee)        |
//	    |                                           |
//	    | ------- Act Three (66 bytes) -----------> |
//	    |   0x00 || enc(s.pub) || tag   (s, se)     |
//	    |                                           |
//	    |    === Split: transport keys ===          |
//
// Security Properties:
//   - The initiator proves knowledge of the responder's static key in act one
//   - The initiator's identity is hidden from passive observers
//   - Forward secrecy through ephemeral keys on both sides
//
// A Handshake is consumed by completion. Every failure is terminal, and a
// failed or completed handshake rejects further input with ErrInvalidState.
package handshake

import (
	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/transport"
)

// Role identifies which side of the handshake this is.
type Role int

const (
	// Initiator knows the remote static key in advance.
	Initiator Role = iota
	// Responder learns the remote static key in act three.
	Responder
)

// String returns the role name.
func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// State represents the current state of the handshake.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingActOne
	StateAwaitingActTwo
	StateAwaitingActThree
	StateComplete
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateAwaitingActOne:
		return "AwaitingActOne"
	case StateAwaitingActTwo:
		return "AwaitingActTwo"
	case StateAwaitingActThree:
		return "AwaitingActThree"
	case StateComplete:
		return "Complete"
	default:
		return "Failed"
	}
}

// Result is the output of a completed handshake.
type Result struct {
	// RemoteStatic is the authenticated static key of the other side.
	RemoteStatic crypto.PublicKey

	// SendKey and RecvKey are the initial transport keys of this side.
	SendKey [constants.KeySize]byte
	RecvKey [constants.KeySize]byte

	// ChainingKey seeds rotation in both directions.
	ChainingKey [constants.KeySize]byte

	// HandshakeHash commits to the whole transcript.
	HandshakeHash [constants.HashSize]byte

	// Conduit is the transport built from the keys above.
	Conduit *transport.Conduit

	// Remaining holds bytes that followed the last act in the same input.
	// They belong to the transport.
	Remaining []byte
}

// Handshake manages one side of the three-act exchange.
type Handshake struct {
	role  Role
	state State
	ss    *SymmetricState

	localStatic       crypto.PrivateKey
	localStaticPub    crypto.PublicKey
	localEphemeral    crypto.PrivateKey
	localEphemeralPub crypto.PublicKey

	remoteStatic    crypto.PublicKey
	remoteEphemeral crypto.PublicKey

	buf []byte
}

// NewInitiator creates the outbound side. A zero ephemeral key is replaced
// with a fresh one.
func NewInitiator(localStatic, localEphemeral crypto.PrivateKey, remoteStatic crypto.PublicKey) (*Handshake, error) {
	if _, err := crypto.ParsePublicKey(remoteStatic[:]); err != nil {
		return nil, err
	}
	h, err := newHandshake(Initiator, localStatic, localEphemeral)
	if err != nil {
		return nil, err
	}
	h.remoteStatic = remoteStatic
	h.ss = NewSymmetricState(remoteStatic)
	return h, nil
}

// NewResponder creates the inbound side. A zero ephemeral key is replaced
// with a fresh one.
func NewResponder(localStatic, localEphemeral crypto.PrivateKey) (*Handshake, error) {
	h, err := newHandshake(Responder, localStatic, localEphemeral)
	if err != nil {
		return nil, err
	}
	h.ss = NewSymmetricState(h.localStaticPub)
	h.state = StateAwaitingActOne
	return h, nil
}

func newHandshake(role Role, static, ephemeral crypto.PrivateKey) (*Handshake, error) {
	staticPub, err := static.PublicKey()
	if err != nil {
		return nil, qerrors.NewCryptoError("local static", err)
	}
	if ephemeral.IsZero() {
		if ephemeral, err = crypto.GeneratePrivateKey(); err != nil {
			return nil, err
		}
	}
	ephemeralPub, err := ephemeral.PublicKey()
	if err != nil {
		return nil, qerrors.NewCryptoError("local ephemeral", err)
	}
	return &Handshake{
		role:              role,
		state:             StateUninitialized,
		localStatic:       static,
		localStaticPub:    staticPub,
		localEphemeral:    ephemeral,
		localEphemeralPub: ephemeralPub,
	}, nil
}

// Role returns the side of this handshake.
func (h *Handshake) Role() Role { return h.role }

// State returns the current handshake state.
func (h *Handshake) State() State { return h.state }

// IsComplete returns true if the handshake completed successfully.
func (h *Handshake) IsComplete() bool { return h.state == StateComplete }

// LocalEphemeral returns the public ephemeral key used by this side.
func (h *Handshake) LocalEphemeral() crypto.PublicKey { return h.localEphemeralPub }

// SymmetricState exposes the running (ck, h, k) triple for inspection.
func (h *Handshake) SymmetricState() *SymmetricState { return h.ss }

// --- Initiator Functions ---

// ActOne produces act one and moves the initiator to AwaitingActTwo.
func (h *Handshake) ActOne() ([]byte, error) {
	if h.role != Initiator || h.state != StateUninitialized {
		return nil, qerrors.NewProtocolError("act one", qerrors.ErrInvalidState)
	}

	h.ss.MixHash(h.localEphemeralPub[:])
	es, err := crypto.ECDH(h.localEphemeral, h.remoteStatic[:])
	if err != nil {
		return nil, h.fail("act one", err)
	}
	h.ss.MixKey(es[:])
	crypto.Zeroize(es[:])
	c := h.ss.EncryptAndHash(nil)

	act := make([]byte, 0, constants.ActOneSize)
	act = append(act, constants.HandshakeVersion)
	act = append(act, h.localEphemeralPub[:]...)
	act = append(act, c...)

	h.state = StateAwaitingActTwo
	return act, nil
}

// ProcessActTwo consumes act two and produces act three. The handshake is
// complete on success.
func (h *Handshake) ProcessActTwo(act []byte) ([]byte, *Result, error) {
	if h.role != Initiator || h.state != StateAwaitingActTwo {
		return nil, nil, qerrors.NewProtocolError("act two", qerrors.ErrInvalidState)
	}
	if len(act) < constants.ActTwoSize {
		return nil, nil, qerrors.NewProtocolError("act two", qerrors.ErrShortInput)
	}

	re, c, err := parseEphemeralAct(act[:constants.ActTwoSize])
	if err != nil {
		return nil, nil, h.fail("act two", err)
	}
	h.remoteEphemeral = re

	h.ss.MixHash(re[:])
	ee, err := crypto.ECDH(h.localEphemeral, re[:])
	if err != nil {
		return nil, nil, h.fail("act two", err)
	}
	h.ss.MixKey(ee[:])
	crypto.Zeroize(ee[:])
	if _, err := h.ss.DecryptAndHash(c); err != nil {
		return nil, nil, h.fail("act two", err)
	}

	// Act three: s encrypted under the act two key at nonce 1.
	encStatic := h.ss.EncryptAndHash(h.localStaticPub[:])
	se, err := crypto.ECDH(h.localStatic, re[:])
	if err != nil {
		return nil, nil, h.fail("act three", err)
	}
	h.ss.MixKey(se[:])
	crypto.Zeroize(se[:])
	tag := h.ss.EncryptAndHash(nil)

	out := make([]byte, 0, constants.ActThreeSize)
	out = append(out, constants.HandshakeVersion)
	out = append(out, encStatic...)
	out = append(out, tag...)

	return out, h.complete(act[constants.ActTwoSize:]), nil
}

// --- Responder Functions ---

// ProcessActOne consumes act one and produces act two.
func (h *Handshake) ProcessActOne(act []byte) ([]byte, error) {
	if h.role != Responder || h.state != StateAwaitingActOne {
		return nil, qerrors.NewProtocolError("act one", qerrors.ErrInvalidState)
	}
	if len(act) < constants.ActOneSize {
		return nil, qerrors.NewProtocolError("act one", qerrors.ErrShortInput)
	}

	re, c, err := parseEphemeralAct(act[:constants.ActOneSize])
	if err != nil {
		return nil, h.fail("act one", err)
	}
	h.remoteEphemeral = re

	h.ss.MixHash(re[:])
	es, err := crypto.ECDH(h.localStatic, re[:])
	if err != nil {
		return nil, h.fail("act one", err)
	}
	h.ss.MixKey(es[:])
	crypto.Zeroize(es[:])
	if _, err := h.ss.DecryptAndHash(c); err != nil {
		return nil, h.fail("act one", err)
	}

	h.ss.MixHash(h.localEphemeralPub[:])
	ee, err := crypto.ECDH(h.localEphemeral, re[:])
	if err != nil {
		return nil, h.fail("act two", err)
	}
	h.ss.MixKey(ee[:])
	crypto.Zeroize(ee[:])
	tag := h.ss.EncryptAndHash(nil)

	out := make([]byte, 0, constants.ActTwoSize)
	out = append(out, constants.HandshakeVersion)
	out = append(out, h.localEphemeralPub[:]...)
	out = append(out, tag...)

	h.state = StateAwaitingActThree
	return out, nil
}

// ProcessActThree consumes act three, authenticating the initiator's
// static key. The handshake is complete on success.
func (h *Handshake) ProcessActThree(act []byte) (*Result, error) {
	if h.role != Responder || h.state != StateAwaitingActThree {
		return nil, qerrors.NewProtocolError("act three", qerrors.ErrInvalidState)
	}
	if len(act) < constants.ActThreeSize {
		return nil, qerrors.NewProtocolError("act three", qerrors.ErrShortInput)
	}
	if act[0] != constants.HandshakeVersion {
		return nil, h.fail("act three", qerrors.ErrUnsupportedVersion)
	}

	encStatic := act[1 : 1+constants.PublicKeySize+constants.TagSize]
	tag := act[1+constants.PublicKeySize+constants.TagSize : constants.ActThreeSize]

	rs, err := h.ss.DecryptAndHash(encStatic)
	if err != nil {
		return nil, h.fail("act three", err)
	}
	remoteStatic, err := crypto.ParsePublicKey(rs)
	if err != nil {
		return nil, h.fail("act three", err)
	}
	h.remoteStatic = remoteStatic

	se, err := crypto.ECDH(h.localEphemeral, remoteStatic[:])
	if err != nil {
		return nil, h.fail("act three", err)
	}
	h.ss.MixKey(se[:])
	crypto.Zeroize(se[:])
	if _, err := h.ss.DecryptAndHash(tag); err != nil {
		return nil, h.fail("act three", err)
	}

	return h.complete(act[constants.ActThreeSize:]), nil
}

// --- Streaming API ---

// Initiate is ActOne for callers that drive the handshake through Process.
func (h *Handshake) Initiate() ([]byte, error) {
	return h.ActOne()
}

// Process accepts an arbitrary chunk of inbound bytes. Input is buffered
// until the expected act is whole, so partial input returns no output and
// no error. out holds the act to send, if any. res is non-nil once the
// handshake is complete.
func (h *Handshake) Process(data []byte) (out []byte, res *Result, err error) {
	var need int
	switch h.state {
	case StateAwaitingActOne:
		need = constants.ActOneSize
	case StateAwaitingActTwo:
		need = constants.ActTwoSize
	case StateAwaitingActThree:
		need = constants.ActThreeSize
	default:
		return nil, nil, qerrors.NewProtocolError("process", qerrors.ErrInvalidState)
	}

	h.buf = append(h.buf, data...)
	if len(h.buf) < need {
		return nil, nil, nil
	}

	act := h.buf
	h.buf = nil
	switch h.state {
	case StateAwaitingActOne:
		out, err = h.ProcessActOne(act)
		if err != nil {
			return nil, nil, err
		}
		// A responder never legitimately sees more than act one before
		// sending act two, but keep anything extra for act three.
		if extra := act[constants.ActOneSize:]; len(extra) > 0 {
			h.buf = append([]byte(nil), extra...)
		}
		return out, nil, nil
	case StateAwaitingActTwo:
		return h.ProcessActTwo(act)
	default:
		res, err = h.ProcessActThree(act)
		return nil, res, err
	}
}

// Buffered returns the number of bytes held toward the next act.
func (h *Handshake) Buffered() int {
	return len(h.buf)
}

// Abort discards an unfinished handshake and zeroizes its secrets.
func (h *Handshake) Abort() {
	if h.state == StateComplete || h.state == StateFailed {
		return
	}
	h.cleanup()
	h.state = StateFailed
}

func parseEphemeralAct(act []byte) (crypto.PublicKey, []byte, error) {
	if act[0] != constants.HandshakeVersion {
		return crypto.PublicKey{}, nil, qerrors.ErrUnsupportedVersion
	}
	re, err := crypto.ParsePublicKey(act[1 : 1+constants.PublicKeySize])
	if err != nil {
		return crypto.PublicKey{}, nil, err
	}
	return re, act[1+constants.PublicKeySize:], nil
}

func (h *Handshake) complete(remaining []byte) *Result {
	k1, k2 := h.ss.Split()
	res := &Result{
		RemoteStatic:  h.remoteStatic,
		ChainingKey:   h.ss.ChainingKey(),
		HandshakeHash: h.ss.HandshakeHash(),
	}
	if h.role == Initiator {
		res.SendKey, res.RecvKey = k1, k2
	} else {
		res.SendKey, res.RecvKey = k2, k1
	}
	res.Conduit = transport.NewConduit(res.SendKey, res.RecvKey, res.ChainingKey)
	if len(remaining) > 0 {
		res.Remaining = append([]byte(nil), remaining...)
	}

	h.cleanup()
	h.state = StateComplete
	return res
}

func (h *Handshake) fail(phase string, err error) error {
	h.cleanup()
	h.state = StateFailed
	return qerrors.NewProtocolError(phase, err)
}

// cleanup zeroizes sensitive handshake data.
func (h *Handshake) cleanup() {
	h.localEphemeral.Zeroize()
	h.localStatic.Zeroize()
	h.buf = nil
	if h.ss != nil {
		crypto.Zeroize(h.ss.k[:])
	}
}
