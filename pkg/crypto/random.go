// Package crypto provides the cryptographic primitives of the BOLT #8 transport:
// secp256k1 keys and ECDH, SHA-256 and HKDF, and ChaCha20-Poly1305 with the
// Lightning nonce layout.
//
// The primitives are exposed through a flynn/noise CipherSuite so the symmetric
// state in pkg/handshake can stay close to the reference Noise framework.
package crypto

import (
	"crypto/rand"
	"io"

	qerrors "github.com/pzverkov/bolt8/internal/errors"
)

// Reader supplies every random byte this package draws: private keys,
// ephemeral keys and SecureRandom. Tests swap it for a fixed stream to
// replay test vectors.
var Reader io.Reader = rand.Reader

// SecureRandom fills b from Reader. A short read is reported as a
// CryptoError and leaves b in an unspecified state.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(Reader, b); err != nil {
		return qerrors.NewCryptoError("SecureRandom", err)
	}
	return nil
}

// Zeroize clears key material held in b. Copies made elsewhere are not
// touched.
func Zeroize(b ...[]byte) {
	for _, s := range b {
		clear(s)
	}
}
