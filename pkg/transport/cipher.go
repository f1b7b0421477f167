// Package transport implements the BOLT #8 message framing that follows a
// completed handshake.
//
// Each direction owns a CipherState: a ChaCha20-Poly1305 key, a nonce counter
// and a chaining key used only for rotation. Every cipher operation advances
// the counter by one. When the counter reaches 1000 the direction rotates:
//
//	(ck, k) = HKDF(salt = ck, ikm = k)
//	n = 0
//
// A frame takes two cipher operations (length header, then body), so a
// rotation may fall between the two halves of one frame.
package transport

import (
	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
)

// Direction identifies one half of a conduit.
type Direction int

const (
	// Outbound is the sending direction.
	Outbound Direction = iota
	// Inbound is the receiving direction.
	Inbound
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// CipherState is the key, nonce and chaining key of one direction.
type CipherState struct {
	key       [constants.KeySize]byte
	nonce     uint64
	ck        [constants.KeySize]byte
	rotations uint64
}

// NewCipherState creates a cipher state with nonce zero.
func NewCipherState(key, ck [constants.KeySize]byte) *CipherState {
	return &CipherState{key: key, ck: ck}
}

// Seal encrypts one plaintext under the current nonce and advances it.
func (c *CipherState) Seal(ad, plaintext []byte) ([]byte, error) {
	if c.nonce >= constants.KeyRotationInterval {
		return nil, qerrors.ErrNonceExhausted
	}
	ct := crypto.Seal(c.key, c.nonce, ad, plaintext)
	c.advance()
	return ct, nil
}

// Open decrypts one ciphertext under the current nonce. The nonce only
// advances when authentication succeeds.
func (c *CipherState) Open(ad, ciphertext []byte) ([]byte, error) {
	if c.nonce >= constants.KeyRotationInterval {
		return nil, qerrors.ErrNonceExhausted
	}
	pt, err := crypto.Open(c.key, c.nonce, ad, ciphertext)
	if err != nil {
		return nil, err
	}
	c.advance()
	return pt, nil
}

func (c *CipherState) advance() {
	c.nonce++
	if c.nonce == constants.KeyRotationInterval {
		c.rotate()
	}
}

func (c *CipherState) rotate() {
	ck, k := crypto.HKDF(c.ck[:], c.key[:])
	crypto.Zeroize(c.key[:])
	c.ck, c.key = ck, k
	c.nonce = 0
	c.rotations++
}

// Nonce returns the counter used by the next cipher operation.
func (c *CipherState) Nonce() uint64 { return c.nonce }

// Key returns the current cipher key.
func (c *CipherState) Key() [constants.KeySize]byte { return c.key }

// ChainingKey returns the current rotation chaining key.
func (c *CipherState) ChainingKey() [constants.KeySize]byte { return c.ck }

// Rotations returns how many times the key has rotated.
func (c *CipherState) Rotations() uint64 { return c.rotations }

// Zeroize clears the key material.
func (c *CipherState) Zeroize() {
	crypto.Zeroize(c.key[:], c.ck[:])
}
