package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/internal/vectors"
	"github.com/pzverkov/bolt8/pkg/crypto"
)

func TestSymmetricRoundTrip(t *testing.T) {
	rs := vectors.Key33(vectors.ResponderStaticPub)
	a := NewSymmetricState(rs)
	b := NewSymmetricState(rs)

	a.MixKey([]byte("shared secret"))
	b.MixKey([]byte("shared secret"))

	for _, msg := range [][]byte{nil, []byte("static key"), make([]byte, 100)} {
		ct := a.EncryptAndHash(msg)
		assert.Len(t, ct, len(msg)+16)
		pt, err := b.DecryptAndHash(ct)
		require.NoError(t, err)
		assert.Equal(t, len(msg), len(pt))
		assert.Equal(t, a.HandshakeHash(), b.HandshakeHash())
	}

	k1, k2 := a.Split()
	k3, k4 := b.Split()
	assert.Equal(t, k1, k3)
	assert.Equal(t, k2, k4)
	assert.NotEqual(t, k1, k2)
}

func TestDecryptAndHashMixesOnFailure(t *testing.T) {
	s := NewSymmetricState(vectors.Key33(vectors.ResponderStaticPub))
	s.MixKey([]byte("ikm"))
	before := s.HandshakeHash()

	bogus := make([]byte, 16)
	_, err := s.DecryptAndHash(bogus)
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)

	want := crypto.SHA256(before[:], bogus)
	assert.Equal(t, want, s.HandshakeHash())
}

func TestSymmetricZeroize(t *testing.T) {
	s := NewSymmetricState(vectors.Key33(vectors.ResponderStaticPub))
	s.MixKey([]byte("ikm"))
	s.Zeroize()
	assert.Equal(t, [32]byte{}, s.ChainingKey())
	assert.Equal(t, [32]byte{}, s.HandshakeHash())
	assert.Equal(t, [32]byte{}, s.TempKey())
}
