// aead.go implements ChaCha20-Poly1305 with the Lightning nonce layout.
//
// Nonce layout (12 bytes):
//
//	[0:4]  zero
//	[4:12] counter, little-endian uint64
//
// CRITICAL: Nonce reuse completely breaks security. Callers own the counter
// and must never seal twice under the same (key, nonce) pair. The transport
// bounds every counter to the rotation interval so it never comes close to
// wrapping.
package crypto

import (
	"encoding/binary"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
)

// Nonce returns the 12-byte nonce for counter n.
func Nonce(n uint64) [constants.NonceSize]byte {
	var nonce [constants.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], n)
	return nonce
}

// Seal encrypts and authenticates plaintext under key and counter n.
// The result is ciphertext || tag.
func Seal(key [constants.KeySize]byte, n uint64, ad, plaintext []byte) []byte {
	c := Suite.Cipher(key)
	return c.Encrypt(make([]byte, 0, len(plaintext)+constants.TagSize), n, ad, plaintext)
}

// Open verifies and decrypts ciphertext || tag under key and counter n.
// Any failure is reported as ErrAuthenticationFailed.
func Open(key [constants.KeySize]byte, n uint64, ad, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < constants.TagSize {
		return nil, qerrors.ErrAuthenticationFailed
	}
	c := Suite.Cipher(key)
	plaintext, err := c.Decrypt(make([]byte, 0, len(ciphertext)-constants.TagSize), n, ad, ciphertext)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	return plaintext, nil
}
