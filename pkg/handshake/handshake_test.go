package handshake

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/internal/vectors"
	"github.com/pzverkov/bolt8/pkg/crypto"
)

func key(t testing.TB, s string) crypto.PrivateKey {
	t.Helper()
	k, err := crypto.PrivateKeyFromHex(s)
	require.NoError(t, err)
	return k
}

func vectorInitiator(t testing.TB) *Handshake {
	t.Helper()
	h, err := NewInitiator(
		key(t, vectors.InitiatorStatic),
		key(t, vectors.InitiatorEphemeral),
		vectors.Key33(vectors.ResponderStaticPub),
	)
	require.NoError(t, err)
	return h
}

func vectorResponder(t testing.TB) *Handshake {
	t.Helper()
	h, err := NewResponder(key(t, vectors.ResponderStatic), key(t, vectors.ResponderEphemeral))
	require.NoError(t, err)
	return h
}

func hexOf(b []byte) string { return hex.EncodeToString(b) }

func TestInitialSymmetricState(t *testing.T) {
	ss := NewSymmetricState(vectors.Key33(vectors.ResponderStaticPub))
	h := ss.HandshakeHash()
	ck := ss.ChainingKey()
	assert.Equal(t, vectors.InitialHash, hexOf(h[:]))
	assert.Equal(t, "2640f52eebcd9e882958951c794250eedb28002c05d7dc2ea0f195406042caf1", hexOf(ck[:]))
}

func TestInitiatorVectors(t *testing.T) {
	h := vectorInitiator(t)
	assert.Equal(t, StateUninitialized, h.State())

	act1, err := h.ActOne()
	require.NoError(t, err)
	assert.Equal(t, vectors.ActOne, hexOf(act1))
	assert.Equal(t, StateAwaitingActTwo, h.State())

	ss := h.SymmetricState()
	hh, ck, k := ss.HandshakeHash(), ss.ChainingKey(), ss.TempKey()
	assert.Equal(t, vectors.ActOneHash, hexOf(hh[:]))
	assert.Equal(t, vectors.ActOneChainingKey, hexOf(ck[:]))
	assert.Equal(t, vectors.ActOneTempKey, hexOf(k[:]))

	act3, res, err := h.ProcessActTwo(vectors.Bytes(vectors.ActTwo))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, vectors.ActThree, hexOf(act3))
	assert.Equal(t, StateComplete, h.State())
	assert.True(t, h.IsComplete())

	assert.Equal(t, vectors.SendKey, hexOf(res.SendKey[:]))
	assert.Equal(t, vectors.RecvKey, hexOf(res.RecvKey[:]))
	assert.Equal(t, vectors.ActThreeChainingKey, hexOf(res.ChainingKey[:]))
	assert.Equal(t, vectors.FinalHash, hexOf(res.HandshakeHash[:]))
	assert.Equal(t, vectors.ResponderStaticPub, res.RemoteStatic.String())
	assert.NotNil(t, res.Conduit)
	assert.Empty(t, res.Remaining)
}

func TestResponderVectors(t *testing.T) {
	h := vectorResponder(t)
	assert.Equal(t, StateAwaitingActOne, h.State())

	act2, err := h.ProcessActOne(vectors.Bytes(vectors.ActOne))
	require.NoError(t, err)
	assert.Equal(t, vectors.ActTwo, hexOf(act2))
	assert.Equal(t, StateAwaitingActThree, h.State())

	ss := h.SymmetricState()
	hh, ck := ss.HandshakeHash(), ss.ChainingKey()
	assert.Equal(t, vectors.ActTwoHash, hexOf(hh[:]))
	assert.Equal(t, vectors.ActTwoChainingKey, hexOf(ck[:]))

	res, err := h.ProcessActThree(vectors.Bytes(vectors.ActThree))
	require.NoError(t, err)
	assert.Equal(t, vectors.InitiatorStaticPub, res.RemoteStatic.String())
	assert.Equal(t, vectors.RecvKey, hexOf(res.SendKey[:]))
	assert.Equal(t, vectors.SendKey, hexOf(res.RecvKey[:]))
	assert.Equal(t, vectors.FinalHash, hexOf(res.HandshakeHash[:]))
}

func TestResponderActOneFailures(t *testing.T) {
	testCases := []struct {
		name string
		act  string
		want qerrors.Kind
	}{
		{"bad version", vectors.ActOneBadVersion, qerrors.KindUnsupportedVersion},
		{"bad key", vectors.ActOneBadKey, qerrors.KindInvalidPoint},
		{"bad MAC", vectors.ActOneBadMAC, qerrors.KindAuthFail},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := vectorResponder(t)
			out, err := h.ProcessActOne(vectors.Bytes(tc.act))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tc.want, qerrors.KindOf(err))
			assert.Equal(t, StateFailed, h.State())

			// A failed handshake is consumed.
			_, err = h.ProcessActOne(vectors.Bytes(vectors.ActOne))
			assert.ErrorIs(t, err, qerrors.ErrInvalidState)
		})
	}
}

func TestInitiatorActTwoFailures(t *testing.T) {
	testCases := []struct {
		name string
		act  string
		want qerrors.Kind
	}{
		{"bad version", vectors.ActTwoBadVersion, qerrors.KindUnsupportedVersion},
		{"bad key", vectors.ActTwoBadKey, qerrors.KindInvalidPoint},
		{"bad MAC", vectors.ActTwoBadMAC, qerrors.KindAuthFail},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := vectorInitiator(t)
			_, err := h.ActOne()
			require.NoError(t, err)
			out, res, err := h.ProcessActTwo(vectors.Bytes(tc.act))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Nil(t, res)
			assert.Equal(t, tc.want, qerrors.KindOf(err))
		})
	}
}

func TestResponderActThreeFailures(t *testing.T) {
	mutate := func(i int, b byte) []byte {
		act := vectors.Bytes(vectors.ActThree)
		act[i] = b
		return act
	}
	act3 := vectors.Bytes(vectors.ActThree)

	testCases := []struct {
		name string
		act  []byte
		want qerrors.Kind
	}{
		{"bad version", mutate(0, 0x01), qerrors.KindUnsupportedVersion},
		{"bad static ciphertext", mutate(1, act3[1]^0x01), qerrors.KindAuthFail},
		{"bad MAC", mutate(65, act3[65]^0x01), qerrors.KindAuthFail},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := vectorResponder(t)
			_, err := h.ProcessActOne(vectors.Bytes(vectors.ActOne))
			require.NoError(t, err)
			res, err := h.ProcessActThree(tc.act)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tc.want, qerrors.KindOf(err))
			assert.True(t, qerrors.IsFatal(err))
		})
	}
}

func TestWrongState(t *testing.T) {
	initiator := vectorInitiator(t)
	_, err := initiator.ProcessActOne(vectors.Bytes(vectors.ActOne))
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err))
	_, err = initiator.ProcessActThree(vectors.Bytes(vectors.ActThree))
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err))
	_, _, err = initiator.ProcessActTwo(vectors.Bytes(vectors.ActTwo))
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err), "act two before act one was sent")

	_, err = initiator.ActOne()
	require.NoError(t, err)
	_, err = initiator.ActOne()
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err))

	responder := vectorResponder(t)
	_, err = responder.ActOne()
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err))

	// Process on a complete handshake.
	_, _, err = initiator.ProcessActTwo(vectors.Bytes(vectors.ActTwo))
	require.NoError(t, err)
	_, _, err = initiator.Process([]byte{0})
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err))
}

func TestShortInput(t *testing.T) {
	h := vectorResponder(t)
	_, err := h.ProcessActOne(vectors.Bytes(vectors.ActOne)[:49])
	assert.Equal(t, qerrors.KindShortInput, qerrors.KindOf(err))
	assert.False(t, qerrors.IsFatal(err))
	assert.Equal(t, StateAwaitingActOne, h.State(), "short input is not terminal")
}

func TestSegmentedHandshake(t *testing.T) {
	initiator := vectorInitiator(t)
	responder := vectorResponder(t)

	act1, err := initiator.Initiate()
	require.NoError(t, err)

	// Act one, one byte at a time.
	var act2 []byte
	for i := range act1 {
		out, res, err := responder.Process(act1[i : i+1])
		require.NoError(t, err)
		assert.Nil(t, res)
		if i < len(act1)-1 {
			assert.Nil(t, out)
			assert.Equal(t, i+1, responder.Buffered())
		} else {
			act2 = out
		}
	}
	assert.Equal(t, vectors.ActTwo, hexOf(act2))

	// Act two in two uneven chunks.
	out, res, err := initiator.Process(act2[:7])
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, res)
	act3, initRes, err := initiator.Process(act2[7:])
	require.NoError(t, err)
	require.NotNil(t, initRes)
	assert.Equal(t, vectors.ActThree, hexOf(act3))

	// Act three with a trailing transport frame glued on.
	frame, err := initRes.Conduit.Encrypt([]byte("hello"))
	require.NoError(t, err)
	stream := append(append([]byte(nil), act3...), frame...)

	_, respRes, err := responder.Process(stream[:30])
	require.NoError(t, err)
	assert.Nil(t, respRes)
	_, respRes, err = responder.Process(stream[30:])
	require.NoError(t, err)
	require.NotNil(t, respRes)

	assert.Equal(t, vectors.InitiatorStaticPub, respRes.RemoteStatic.String())
	assert.Equal(t, initRes.SendKey, respRes.RecvKey)
	assert.Equal(t, initRes.RecvKey, respRes.SendKey)
	assert.Equal(t, frame, respRes.Remaining)

	msgs, err := respRes.Conduit.Decrypt(respRes.Remaining)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("hello"), msgs[0])
}

func TestRandomEphemeralHandshake(t *testing.T) {
	for i := 0; i < 5; i++ {
		initStatic, err := crypto.GeneratePrivateKey()
		require.NoError(t, err)
		respStatic, err := crypto.GeneratePrivateKey()
		require.NoError(t, err)
		initPub, _ := initStatic.PublicKey()
		respPub, _ := respStatic.PublicKey()

		initiator, err := NewInitiator(initStatic, crypto.PrivateKey{}, respPub)
		require.NoError(t, err)
		responder, err := NewResponder(respStatic, crypto.PrivateKey{})
		require.NoError(t, err)

		act1, err := initiator.Initiate()
		require.NoError(t, err)
		act2, _, err := responder.Process(act1)
		require.NoError(t, err)
		act3, initRes, err := initiator.Process(act2)
		require.NoError(t, err)
		_, respRes, err := responder.Process(act3)
		require.NoError(t, err)

		assert.Equal(t, initPub, respRes.RemoteStatic)
		assert.Equal(t, respPub, initRes.RemoteStatic)
		assert.Equal(t, initRes.SendKey, respRes.RecvKey)
		assert.Equal(t, initRes.RecvKey, respRes.SendKey)
		assert.Equal(t, initRes.ChainingKey, respRes.ChainingKey)
		assert.Equal(t, initRes.HandshakeHash, respRes.HandshakeHash)
	}
}

func TestWrongResponderKey(t *testing.T) {
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	otherPub, _ := other.PublicKey()

	initiator, err := NewInitiator(key(t, vectors.InitiatorStatic), crypto.PrivateKey{}, otherPub)
	require.NoError(t, err)
	act1, err := initiator.Initiate()
	require.NoError(t, err)

	responder := vectorResponder(t)
	_, _, err = responder.Process(act1)
	assert.Equal(t, qerrors.KindAuthFail, qerrors.KindOf(err))
}

func TestConstructorValidation(t *testing.T) {
	_, err := NewInitiator(crypto.PrivateKey{}, crypto.PrivateKey{}, vectors.Key33(vectors.ResponderStaticPub))
	assert.Equal(t, qerrors.KindInvalidPoint, qerrors.KindOf(err))

	_, err = NewInitiator(key(t, vectors.InitiatorStatic), crypto.PrivateKey{}, crypto.PublicKey{})
	assert.Equal(t, qerrors.KindInvalidPoint, qerrors.KindOf(err))

	_, err = NewResponder(crypto.PrivateKey{}, crypto.PrivateKey{})
	assert.Error(t, err)
}

func TestAbort(t *testing.T) {
	initiator := vectorInitiator(t)
	_, err := initiator.Initiate()
	require.NoError(t, err)

	initiator.Abort()
	assert.Equal(t, StateFailed, initiator.State())
	assert.Equal(t, [32]byte{}, initiator.SymmetricState().TempKey())

	_, _, err = initiator.Process(vectors.Bytes(vectors.ActTwo))
	assert.Equal(t, qerrors.KindWrongState, qerrors.KindOf(err))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "AwaitingActThree", StateAwaitingActThree.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "initiator", Initiator.String())
	assert.Equal(t, "responder", Responder.String())
}

func BenchmarkHandshake(b *testing.B) {
	initStatic, _ := crypto.GeneratePrivateKey()
	respStatic, _ := crypto.GeneratePrivateKey()
	respPub, _ := respStatic.PublicKey()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		initiator, _ := NewInitiator(initStatic, crypto.PrivateKey{}, respPub)
		responder, _ := NewResponder(respStatic, crypto.PrivateKey{})
		act1, _ := initiator.Initiate()
		act2, _, _ := responder.Process(act1)
		act3, _, _ := initiator.Process(act2)
		if _, res, err := responder.Process(act3); err != nil || res == nil {
			b.Fatal("handshake failed")
		}
	}
}
