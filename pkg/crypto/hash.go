// hash.go implements SHA-256 hashing and the HKDF expansion used by Noise.
//
// Noise derives two 32-byte outputs per MixKey and per key rotation:
//
//	(ck', k) = HKDF-SHA256(salt = ck, ikm = input, info = "")
//
// The first output replaces the chaining key, the second becomes the new
// cipher key.
package crypto

import (
	"crypto/hmac"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/pzverkov/bolt8/internal/constants"
)

// SHA256 hashes the concatenation of parts.
func SHA256(parts ...[]byte) [constants.HashSize]byte {
	h := Suite.Hash()
	for _, p := range parts {
		h.Write(p)
	}
	var out [constants.HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) [constants.HashSize]byte {
	mac := hmac.New(Suite.Hash, key)
	mac.Write(data)
	var out [constants.HashSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// HKDF extracts with salt and expands to two 32-byte keys.
func HKDF(salt, ikm []byte) (k1, k2 [constants.KeySize]byte) {
	r := hkdf.New(Suite.Hash, ikm, salt, nil)
	var out [2 * constants.KeySize]byte
	// Reading 64 bytes from an HKDF-SHA256 stream cannot fail.
	_, _ = io.ReadFull(r, out[:])
	copy(k1[:], out[:constants.KeySize])
	copy(k2[:], out[constants.KeySize:])
	Zeroize(out[:])
	return k1, k2
}
