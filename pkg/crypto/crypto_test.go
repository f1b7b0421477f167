package crypto_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
)

// --- Random Tests ---

func TestSecureRandom(t *testing.T) {
	buf := make([]byte, 32)
	require.NoError(t, crypto.SecureRandom(buf))
	assert.NotEqual(t, make([]byte, 32), buf, "SecureRandom returned all zeros")
}

func TestSecureRandomShortRead(t *testing.T) {
	orig := crypto.Reader
	t.Cleanup(func() { crypto.Reader = orig })

	crypto.Reader = bytes.NewReader(make([]byte, 8))
	err := crypto.SecureRandom(make([]byte, 32))
	var ce *qerrors.CryptoError
	assert.ErrorAs(t, err, &ce)

	_, err = crypto.GeneratePrivateKey()
	assert.Error(t, err)
}

func TestReaderDrivesKeyGeneration(t *testing.T) {
	orig := crypto.Reader
	t.Cleanup(func() { crypto.Reader = orig })

	seed := bytes.Repeat([]byte{0x11}, 32)
	crypto.Reader = bytes.NewReader(seed)
	k, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	assert.Equal(t, seed, k[:])
}

func TestZeroize(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	crypto.Zeroize(a, b, nil)
	assert.Equal(t, []byte{0, 0, 0}, a)
	assert.Equal(t, []byte{0, 0}, b)

	k, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	k.Zeroize()
	assert.True(t, k.IsZero())
}

// --- secp256k1 Tests ---

func TestPrivateKeyValidation(t *testing.T) {
	_, err := crypto.PrivateKeyFromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, qerrors.ErrInvalidKeySize)

	_, err = crypto.PrivateKeyFromBytes(make([]byte, 32))
	assert.ErrorIs(t, err, qerrors.ErrInvalidPrivateKey, "zero scalar")

	// The group order n itself is out of range.
	_, err = crypto.PrivateKeyFromHex("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	assert.ErrorIs(t, err, qerrors.ErrInvalidPrivateKey)

	k, err := crypto.PrivateKeyFromHex("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364140")
	require.NoError(t, err, "n-1 is valid")
	assert.False(t, k.IsZero())

	var zero crypto.PrivateKey
	_, err = zero.PublicKey()
	assert.Equal(t, qerrors.KindInvalidPoint, qerrors.KindOf(err))
}

func TestParsePublicKey(t *testing.T) {
	k, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	pub, err := k.PublicKey()
	require.NoError(t, err)

	parsed, err := crypto.ParsePublicKey(pub[:])
	require.NoError(t, err)
	assert.Equal(t, pub, parsed)

	roundTrip, err := crypto.PublicKeyFromHex(pub.String())
	require.NoError(t, err)
	assert.Equal(t, pub, roundTrip)

	bad := pub
	bad[0] = 0x04
	_, err = crypto.ParsePublicKey(bad[:])
	assert.ErrorIs(t, err, qerrors.ErrInvalidPoint)

	_, err = crypto.ParsePublicKey(pub[:32])
	assert.ErrorIs(t, err, qerrors.ErrInvalidPoint)

	// x = 5 has no square root on secp256k1.
	var offCurve crypto.PublicKey
	offCurve[0] = 0x02
	offCurve[32] = 0x05
	_, err = crypto.ParsePublicKey(offCurve[:])
	assert.ErrorIs(t, err, qerrors.ErrInvalidPoint)
}

func TestECDHAgreement(t *testing.T) {
	a, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	b, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	aPub, _ := a.PublicKey()
	bPub, _ := b.PublicKey()

	s1, err := crypto.ECDH(a, bPub[:])
	require.NoError(t, err)
	s2, err := crypto.ECDH(b, aPub[:])
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	_, err = crypto.ECDH(a, []byte{0x02, 0x01})
	assert.ErrorIs(t, err, qerrors.ErrInvalidPoint)
}

func TestDHFunc(t *testing.T) {
	dh := crypto.DHSecp256k1
	assert.Equal(t, "secp256k1", dh.DHName())
	assert.Equal(t, constants.PublicKeySize, dh.DHLen())

	a, err := dh.GenerateKeypair(nil)
	require.NoError(t, err)
	b, err := dh.GenerateKeypair(crypto.Reader)
	require.NoError(t, err)

	s1, err := dh.DH(a.Private, b.Public)
	require.NoError(t, err)
	s2, err := dh.DH(b.Private, a.Public)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, constants.SharedSecretSize)

	assert.Equal(t, "secp256k1_ChaChaPoly_SHA256", string(crypto.Suite.Name()))
}

func TestCheckKeyPair(t *testing.T) {
	k, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	assert.NoError(t, crypto.CheckKeyPair(k))
	assert.Error(t, crypto.CheckKeyPair(crypto.PrivateKey{}))
}

// --- AEAD Tests ---

func TestNonceLayout(t *testing.T) {
	n := crypto.Nonce(0x0102030405060708)
	assert.Equal(t, []byte{0, 0, 0, 0, 8, 7, 6, 5, 4, 3, 2, 1}, n[:])
}

// TestSealMatchesChaCha20Poly1305 cross-checks the noise cipher against x/crypto
// with the nonce built by Nonce.
func TestSealMatchesChaCha20Poly1305(t *testing.T) {
	var key [constants.KeySize]byte
	require.NoError(t, crypto.SecureRandom(key[:]))
	aead, err := chacha20poly1305.New(key[:])
	require.NoError(t, err)

	ad := []byte("associated")
	pt := []byte("some plaintext for the cipher")
	for _, n := range []uint64{0, 1, 999, 1 << 40} {
		nonce := crypto.Nonce(n)
		want := aead.Seal(nil, nonce[:], pt, ad)
		got := crypto.Seal(key, n, ad, pt)
		assert.Equal(t, want, got, "nonce %d", n)

		opened, err := crypto.Open(key, n, ad, got)
		require.NoError(t, err)
		assert.Equal(t, pt, opened)
	}
}

func TestOpenFailures(t *testing.T) {
	var key [constants.KeySize]byte
	ct := crypto.Seal(key, 7, nil, []byte("payload"))

	tampered := bytes.Clone(ct)
	tampered[0] ^= 0x01
	_, err := crypto.Open(key, 7, nil, tampered)
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)

	_, err = crypto.Open(key, 8, nil, ct)
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)

	_, err = crypto.Open(key, 7, []byte("ad"), ct)
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)

	_, err = crypto.Open(key, 7, nil, ct[:constants.TagSize-1])
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)
}

// --- Self-test ---

func TestSelfTest(t *testing.T) {
	r := crypto.RunSelfTest()
	require.NotNil(t, r)
	assert.True(t, r.Passed, "errors: %v", r.Errors)
	assert.True(t, r.HashPassed)
	assert.True(t, r.ECDHPassed)
	assert.True(t, r.HKDFPassed)
	assert.True(t, r.AEADPassed)
	assert.Same(t, r, crypto.RunSelfTest())
	assert.True(t, crypto.SelfTestPassed())
}
