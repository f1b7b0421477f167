// secp256k1.go implements secp256k1 keys and the BOLT #8 flavour of ECDH.
//
// Lightning node identities and handshake ephemerals are secp256k1 key pairs.
// Public keys travel in the 33-byte compressed SEC1 encoding.
//
// ECDH is defined as SHA-256 over the compressed encoding of the shared point:
//
//	ECDH(k, P) = SHA256(compress(k·P))
//
// This differs from the x-coordinate-only secret of RFC 5903, so the
// curve arithmetic is done directly on Jacobian points.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/flynn/noise"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
)

// PrivateKey is a secp256k1 scalar in big-endian form.
// Valid keys are in the range [1, n-1] where n is the curve order.
type PrivateKey [constants.PrivateKeySize]byte

// PublicKey is a compressed secp256k1 point.
type PublicKey [constants.PublicKeySize]byte

// GeneratePrivateKey draws a fresh private key from Reader.
func GeneratePrivateKey() (PrivateKey, error) {
	return generatePrivateKey(Reader)
}

func generatePrivateKey(r io.Reader) (PrivateKey, error) {
	var k PrivateKey
	for {
		if _, err := io.ReadFull(r, k[:]); err != nil {
			return PrivateKey{}, qerrors.NewCryptoError("GeneratePrivateKey", err)
		}
		if _, err := k.scalar(); err == nil {
			return k, nil
		}
	}
}

// PrivateKeyFromBytes validates b as a secp256k1 scalar.
func PrivateKeyFromBytes(b []byte) (PrivateKey, error) {
	if len(b) != constants.PrivateKeySize {
		return PrivateKey{}, qerrors.ErrInvalidKeySize
	}
	var k PrivateKey
	copy(k[:], b)
	if _, err := k.scalar(); err != nil {
		return PrivateKey{}, err
	}
	return k, nil
}

// PrivateKeyFromHex decodes a hex-encoded private key.
func PrivateKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PrivateKey{}, qerrors.NewCryptoError("PrivateKeyFromHex", err)
	}
	return PrivateKeyFromBytes(b)
}

func (k *PrivateKey) scalar() (*secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	buf := [constants.PrivateKeySize]byte(*k)
	overflow := s.SetBytes(&buf)
	Zeroize(buf[:])
	if overflow != 0 || s.IsZero() {
		return nil, qerrors.ErrInvalidPrivateKey
	}
	return &s, nil
}

// IsZero reports whether the key is unset.
func (k PrivateKey) IsZero() bool {
	return k == PrivateKey{}
}

// PublicKey derives the compressed public key.
func (k PrivateKey) PublicKey() (PublicKey, error) {
	s, err := k.scalar()
	if err != nil {
		return PublicKey{}, err
	}
	priv := secp256k1.NewPrivateKey(s)
	defer priv.Zero()

	var pub PublicKey
	copy(pub[:], priv.PubKey().SerializeCompressed())
	return pub, nil
}

// Zeroize clears the key in place.
func (k *PrivateKey) Zeroize() {
	Zeroize(k[:])
}

// ParsePublicKey validates a compressed public key.
// Uncompressed and hybrid encodings are rejected.
func ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) != constants.PublicKeySize {
		return PublicKey{}, qerrors.NewCryptoError("ParsePublicKey", qerrors.ErrInvalidPoint)
	}
	if b[0] != secp256k1.PubKeyFormatCompressedEven && b[0] != secp256k1.PubKeyFormatCompressedOdd {
		return PublicKey{}, qerrors.NewCryptoError("ParsePublicKey", qerrors.ErrInvalidPoint)
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return PublicKey{}, qerrors.NewCryptoError("ParsePublicKey", qerrors.ErrInvalidPoint)
	}
	var pub PublicKey
	copy(pub[:], b)
	return pub, nil
}

// PublicKeyFromHex decodes and validates a hex-encoded public key.
func PublicKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, qerrors.NewCryptoError("PublicKeyFromHex", err)
	}
	return ParsePublicKey(b)
}

// String returns the hex encoding of the key.
func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether the key is unset.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// ECDH computes SHA256(compress(priv·pub)).
func ECDH(priv PrivateKey, pub []byte) ([constants.SharedSecretSize]byte, error) {
	var secret [constants.SharedSecretSize]byte

	s, err := priv.scalar()
	if err != nil {
		return secret, err
	}
	defer s.Zero()

	point, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return secret, qerrors.NewCryptoError("ECDH", qerrors.ErrInvalidPoint)
	}

	var p, r secp256k1.JacobianPoint
	point.AsJacobian(&p)
	secp256k1.ScalarMultNonConst(s, &p, &r)
	r.ToAffine()

	shared := secp256k1.NewPublicKey(&r.X, &r.Y)
	secret = sha256.Sum256(shared.SerializeCompressed())
	return secret, nil
}

// DHSecp256k1 is the secp256k1 DH function in the shape flynn/noise expects.
var DHSecp256k1 noise.DHFunc = dhSecp256k1{}

type dhSecp256k1 struct{}

func (dhSecp256k1) GenerateKeypair(rng io.Reader) (noise.DHKey, error) {
	if rng == nil {
		rng = Reader
	}
	priv, err := generatePrivateKey(rng)
	if err != nil {
		return noise.DHKey{}, err
	}
	pub, err := priv.PublicKey()
	if err != nil {
		return noise.DHKey{}, err
	}
	return noise.DHKey{Private: priv[:], Public: pub[:]}, nil
}

func (dhSecp256k1) DH(privkey, pubkey []byte) ([]byte, error) {
	priv, err := PrivateKeyFromBytes(privkey)
	if err != nil {
		return nil, err
	}
	secret, err := ECDH(priv, pubkey)
	if err != nil {
		return nil, err
	}
	return secret[:], nil
}

func (dhSecp256k1) DHLen() int     { return constants.PublicKeySize }
func (dhSecp256k1) DHName() string { return "secp256k1" }

// Suite is the Noise cipher suite named in the protocol string.
var Suite = noise.NewCipherSuite(DHSecp256k1, noise.CipherChaChaPoly, noise.HashSHA256)
