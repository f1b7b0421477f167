package handshake

import (
	"github.com/pzverkov/bolt8/internal/constants"
	"github.com/pzverkov/bolt8/pkg/crypto"
)

// SymmetricState is the Noise (ck, h, k) triple with the nonce of k.
type SymmetricState struct {
	ck [constants.KeySize]byte
	h  [constants.HashSize]byte
	k  [constants.KeySize]byte
	n  uint64
}

// NewSymmetricState initializes the state for a handshake with the given
// responder static key:
//
//	ck = h = SHA256(protocol name)
//	h = SHA256(h || prologue)
//	h = SHA256(h || rs)
func NewSymmetricState(responderStatic crypto.PublicKey) *SymmetricState {
	s := &SymmetricState{}
	s.h = crypto.SHA256([]byte(constants.ProtocolName))
	s.ck = s.h
	s.MixHash([]byte(constants.Prologue))
	s.MixHash(responderStatic[:])
	return s
}

// MixHash sets h = SHA256(h || data).
func (s *SymmetricState) MixHash(data []byte) {
	s.h = crypto.SHA256(s.h[:], data)
}

// MixKey sets (ck, k) = HKDF(ck, ikm) and resets the nonce.
func (s *SymmetricState) MixKey(ikm []byte) {
	crypto.Zeroize(s.k[:])
	s.ck, s.k = crypto.HKDF(s.ck[:], ikm)
	s.n = 0
}

// EncryptAndHash seals plaintext with h as associated data, then mixes the
// ciphertext into h.
func (s *SymmetricState) EncryptAndHash(plaintext []byte) []byte {
	ct := crypto.Seal(s.k, s.n, s.h[:], plaintext)
	s.n++
	s.MixHash(ct)
	return ct
}

// DecryptAndHash opens ciphertext with h as associated data. The ciphertext
// is mixed into h whether or not it authenticates.
func (s *SymmetricState) DecryptAndHash(ciphertext []byte) ([]byte, error) {
	pt, err := crypto.Open(s.k, s.n, s.h[:], ciphertext)
	s.MixHash(ciphertext)
	if err != nil {
		return nil, err
	}
	s.n++
	return pt, nil
}

// Split derives the two transport keys. The first key encrypts traffic
// from the initiator.
func (s *SymmetricState) Split() (k1, k2 [constants.KeySize]byte) {
	return crypto.HKDF(s.ck[:], nil)
}

// ChainingKey returns ck.
func (s *SymmetricState) ChainingKey() [constants.KeySize]byte { return s.ck }

// HandshakeHash returns h.
func (s *SymmetricState) HandshakeHash() [constants.HashSize]byte { return s.h }

// TempKey returns k.
func (s *SymmetricState) TempKey() [constants.KeySize]byte { return s.k }

// Zeroize clears all three values.
func (s *SymmetricState) Zeroize() {
	crypto.Zeroize(s.ck[:], s.h[:], s.k[:])
	s.n = 0
}
