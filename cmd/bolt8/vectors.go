package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/internal/vectors"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/handshake"
	"github.com/pzverkov/bolt8/pkg/transport"
	"github.com/pzverkov/bolt8/pkg/wire"
)

// vectorResult is the outcome of one known-answer check.
type vectorResult struct {
	Name string
	Err  error
}

func (c *cli) vectorsCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "vectors",
		Short: "Replay the BOLT #8 Appendix A test vectors",
		Long: `Replay the published BOLT #8 test vectors against this implementation:
the three handshake acts with their intermediate state, the transport frames
including key rotation, the responder and initiator failure cases, and the
BOLT #1 ping encoding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := runVectors()
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", r.Name, r.Err)
					continue
				}
				if verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", r.Name)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d/%d checks passed\n", len(results)-failed, len(results))
			if failed > 0 {
				return fmt.Errorf("%d vector checks failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list passing checks too")
	return cmd
}

// runVectors executes every known-answer check and never stops early.
func runVectors() []vectorResult {
	var results []vectorResult
	check := func(name string, fn func() error) {
		results = append(results, vectorResult{Name: name, Err: fn()})
	}

	check("crypto self-test", func() error {
		r := crypto.RunSelfTest()
		if !r.Passed {
			return fmt.Errorf("%v", r.Errors)
		}
		return nil
	})

	var initRes, respRes *handshake.Result
	check("handshake", func() error {
		var err error
		initRes, respRes, err = vectorHandshake()
		return err
	})

	if initRes != nil && respRes != nil {
		check("transport frames (hello)", func() error {
			return vectorFrames(initRes, respRes, []byte("hello"), vectors.HelloFrames)
		})
		check("transport frames (empty)", func() error {
			return vectorFrames(initRes, respRes, nil, vectors.EmptyFrames)
		})
	}

	for _, f := range []struct {
		name string
		act  string
		want qerrors.Kind
	}{
		{"act one bad version", vectors.ActOneBadVersion, qerrors.KindUnsupportedVersion},
		{"act one bad key", vectors.ActOneBadKey, qerrors.KindInvalidPoint},
		{"act one bad MAC", vectors.ActOneBadMAC, qerrors.KindAuthFail},
	} {
		f := f
		check("responder rejects "+f.name, func() error {
			h, err := vectorResponder()
			if err != nil {
				return err
			}
			_, err = h.ProcessActOne(vectors.Bytes(f.act))
			return expectKind(err, f.want)
		})
	}

	for _, f := range []struct {
		name string
		act  string
		want qerrors.Kind
	}{
		{"act two bad version", vectors.ActTwoBadVersion, qerrors.KindUnsupportedVersion},
		{"act two bad key", vectors.ActTwoBadKey, qerrors.KindInvalidPoint},
		{"act two bad MAC", vectors.ActTwoBadMAC, qerrors.KindAuthFail},
	} {
		f := f
		check("initiator rejects "+f.name, func() error {
			h, err := vectorInitiator()
			if err != nil {
				return err
			}
			if _, err := h.ActOne(); err != nil {
				return err
			}
			_, _, err = h.ProcessActTwo(vectors.Bytes(f.act))
			return expectKind(err, f.want)
		})
	}

	check("ping encoding", func() error {
		b, err := wire.Encode(&wire.Ping{NumPongBytes: 290, PaddingBytes: make(wire.VarBytes, 4)})
		if err != nil {
			return err
		}
		return expectHex(b, "00120122000400000000")
	})

	return results
}

func vectorKey(s string) (crypto.PrivateKey, error) {
	return crypto.PrivateKeyFromHex(s)
}

func vectorInitiator() (*handshake.Handshake, error) {
	ls, err := vectorKey(vectors.InitiatorStatic)
	if err != nil {
		return nil, err
	}
	le, err := vectorKey(vectors.InitiatorEphemeral)
	if err != nil {
		return nil, err
	}
	return handshake.NewInitiator(ls, le, vectors.Key33(vectors.ResponderStaticPub))
}

func vectorResponder() (*handshake.Handshake, error) {
	ls, err := vectorKey(vectors.ResponderStatic)
	if err != nil {
		return nil, err
	}
	le, err := vectorKey(vectors.ResponderEphemeral)
	if err != nil {
		return nil, err
	}
	return handshake.NewResponder(ls, le)
}

// vectorHandshake runs both sides and compares every published
// intermediate value.
func vectorHandshake() (*handshake.Result, *handshake.Result, error) {
	ini, err := vectorInitiator()
	if err != nil {
		return nil, nil, err
	}
	resp, err := vectorResponder()
	if err != nil {
		return nil, nil, err
	}

	act1, err := ini.ActOne()
	if err != nil {
		return nil, nil, err
	}
	ss := ini.SymmetricState()
	hh, ck, k := ss.HandshakeHash(), ss.ChainingKey(), ss.TempKey()
	if err := expectAll(
		named("act one", act1, vectors.ActOne),
		named("act one h", hh[:], vectors.ActOneHash),
		named("act one ck", ck[:], vectors.ActOneChainingKey),
		named("act one temp_k1", k[:], vectors.ActOneTempKey),
	); err != nil {
		return nil, nil, err
	}

	act2, err := resp.ProcessActOne(act1)
	if err != nil {
		return nil, nil, err
	}
	ss = resp.SymmetricState()
	hh, ck, k = ss.HandshakeHash(), ss.ChainingKey(), ss.TempKey()
	if err := expectAll(
		named("act two", act2, vectors.ActTwo),
		named("act two h", hh[:], vectors.ActTwoHash),
		named("act two ck", ck[:], vectors.ActTwoChainingKey),
		named("act two temp_k2", k[:], vectors.ActTwoTempKey),
	); err != nil {
		return nil, nil, err
	}

	act3, initRes, err := ini.ProcessActTwo(act2)
	if err != nil {
		return nil, nil, err
	}
	respRes, err := resp.ProcessActThree(act3)
	if err != nil {
		return nil, nil, err
	}
	if err := expectAll(
		named("act three", act3, vectors.ActThree),
		named("final ck", initRes.ChainingKey[:], vectors.ActThreeChainingKey),
		named("final h", initRes.HandshakeHash[:], vectors.FinalHash),
		named("initiator sk", initRes.SendKey[:], vectors.SendKey),
		named("initiator rk", initRes.RecvKey[:], vectors.RecvKey),
		named("responder sk", respRes.SendKey[:], vectors.RecvKey),
		named("responder rk", respRes.RecvKey[:], vectors.SendKey),
		named("responder learns rs", respRes.RemoteStatic[:], vectors.InitiatorStaticPub),
	); err != nil {
		return nil, nil, err
	}
	return initRes, respRes, nil
}

// vectorFrames sends msg TransportMessages times on fresh conduits built
// from the handshake keys and compares the published frames. Every frame
// must also decrypt on the responder side.
func vectorFrames(initRes, respRes *handshake.Result, msg []byte, want map[int]string) error {
	send := transport.NewConduit(initRes.SendKey, initRes.RecvKey, initRes.ChainingKey)
	recv := transport.NewConduit(respRes.SendKey, respRes.RecvKey, respRes.ChainingKey)
	defer send.Close()
	defer recv.Close()

	matched := 0
	for i := 0; i < vectors.TransportMessages; i++ {
		frame, err := send.Encrypt(msg)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if w, ok := want[i]; ok {
			if err := expectHex(frame, w); err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}
			matched++
		}
		out, err := recv.Decrypt(frame)
		if err != nil {
			return fmt.Errorf("message %d: decrypt: %w", i, err)
		}
		if len(out) != 1 || !bytes.Equal(out[0], msg) {
			return fmt.Errorf("message %d: round trip mismatch", i)
		}
	}
	if matched != len(want) {
		return fmt.Errorf("matched %d of %d frames", matched, len(want))
	}
	if n := send.Rotations(transport.Outbound); n != 2 {
		return fmt.Errorf("expected 2 outbound rotations, got %d", n)
	}
	return nil
}

type namedValue struct {
	name string
	got  []byte
	want string
}

func named(name string, got []byte, want string) namedValue {
	return namedValue{name: name, got: got, want: want}
}

func expectAll(values ...namedValue) error {
	var errs []error
	for _, v := range values {
		if err := expectHex(v.got, v.want); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.name, err))
		}
	}
	return errors.Join(errs...)
}

func expectHex(got []byte, want string) error {
	if g := hex.EncodeToString(got); g != want {
		return fmt.Errorf("got %s, want %s", g, want)
	}
	return nil
}

func expectKind(err error, want qerrors.Kind) error {
	if err == nil {
		return fmt.Errorf("accepted, want %s", want)
	}
	if got := qerrors.KindOf(err); got != want {
		return fmt.Errorf("got %s (%v), want %s", got, err, want)
	}
	return nil
}
