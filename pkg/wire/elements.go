package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/samber/oops"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
)

// Color is an RGB node color.
type Color [3]byte

// Hash is a 32-byte hash such as a chain hash or channel id.
type Hash [32]byte

// Signature is a compact 64-byte ECDSA signature.
type Signature [64]byte

// VarBytes is an opaque buffer with a u16 length prefix.
type VarBytes []byte

// TrailingBytes is an opaque buffer that runs to the end of the payload.
// It is always the last field of a message.
type TrailingBytes []byte

// ShortChannelID locates a funding output on chain.
type ShortChannelID struct {
	BlockHeight uint32 // 3 bytes on the wire
	TxIndex     uint32 // 3 bytes on the wire
	TxPosition  uint16
}

// NewShortChanIDFromInt unpacks the 8-byte wire form.
func NewShortChanIDFromInt(v uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(v >> 40),
		TxIndex:     uint32(v>>16) & 0xFFFFFF,
		TxPosition:  uint16(v),
	}
}

// ToUint64 packs the id into its 8-byte wire form.
func (s ShortChannelID) ToUint64() uint64 {
	return uint64(s.BlockHeight)<<40 | uint64(s.TxIndex&0xFFFFFF)<<16 | uint64(s.TxPosition)
}

// String returns the id in block x tx x output notation.
func (s ShortChannelID) String() string {
	return fmt.Sprintf("%dx%dx%d", s.BlockHeight, s.TxIndex, s.TxPosition)
}

// errInvalidPoint is a malformed point inside a message. It is a codec
// failure, not a handshake one.
var errInvalidPoint = fmt.Errorf("%w: invalid point", qerrors.ErrMalformedMessage)

// WriteElements writes each element in order with its canonical width.
func WriteElements(w *bytes.Buffer, elements ...any) error {
	for _, e := range elements {
		if err := writeElement(w, e); err != nil {
			return err
		}
	}
	return nil
}

func writeElement(w *bytes.Buffer, element any) error {
	var scratch [8]byte

	switch e := element.(type) {
	case uint8:
		w.WriteByte(e)
	case uint16:
		binary.BigEndian.PutUint16(scratch[:2], e)
		w.Write(scratch[:2])
	case uint32:
		binary.BigEndian.PutUint32(scratch[:4], e)
		w.Write(scratch[:4])
	case uint64:
		binary.BigEndian.PutUint64(scratch[:], e)
		w.Write(scratch[:])
	case Color:
		w.Write(e[:])
	case ShortChannelID:
		binary.BigEndian.PutUint64(scratch[:], e.ToUint64())
		w.Write(scratch[:])
	case Hash:
		w.Write(e[:])
	case crypto.PublicKey:
		w.Write(e[:])
	case Signature:
		w.Write(e[:])
	case VarBytes:
		if len(e) > constants.MaxPayloadSize {
			return oops.In("wire").With("length", len(e)).Wrapf(qerrors.ErrBadLength, "var bytes")
		}
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(e)))
		w.Write(scratch[:2])
		w.Write(e)
	case TrailingBytes:
		w.Write(e)
	default:
		return oops.In("wire").Errorf("unknown element type %T", element)
	}
	return nil
}

// ReadElements reads each element in order. Targets are pointers to the
// types accepted by WriteElements.
func ReadElements(r *bytes.Reader, elements ...any) error {
	for _, e := range elements {
		if err := readElement(r, e); err != nil {
			return err
		}
	}
	return nil
}

func readFull(r *bytes.Reader, b []byte, element any) error {
	if _, err := io.ReadFull(r, b); err != nil {
		return oops.In("wire").
			With("element", fmt.Sprintf("%T", element), "want", len(b), "have", r.Len()).
			Wrapf(qerrors.ErrShortField, "read %T", element)
	}
	return nil
}

func readElement(r *bytes.Reader, element any) error {
	var scratch [8]byte

	switch e := element.(type) {
	case *uint8:
		if err := readFull(r, scratch[:1], element); err != nil {
			return err
		}
		*e = scratch[0]
	case *uint16:
		if err := readFull(r, scratch[:2], element); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(scratch[:2])
	case *uint32:
		if err := readFull(r, scratch[:4], element); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(scratch[:4])
	case *uint64:
		if err := readFull(r, scratch[:], element); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(scratch[:])
	case *Color:
		return readFull(r, e[:], element)
	case *ShortChannelID:
		if err := readFull(r, scratch[:], element); err != nil {
			return err
		}
		*e = NewShortChanIDFromInt(binary.BigEndian.Uint64(scratch[:]))
	case *Hash:
		return readFull(r, e[:], element)
	case *crypto.PublicKey:
		var raw [constants.PublicKeySize]byte
		if err := readFull(r, raw[:], element); err != nil {
			return err
		}
		pub, err := crypto.ParsePublicKey(raw[:])
		if err != nil {
			return oops.In("wire").Wrapf(errInvalidPoint, "point %x", raw)
		}
		*e = pub
	case *Signature:
		return readFull(r, e[:], element)
	case *VarBytes:
		if err := readFull(r, scratch[:2], element); err != nil {
			return err
		}
		n := int(binary.BigEndian.Uint16(scratch[:2]))
		if n > r.Len() {
			return oops.In("wire").
				With("declared", n, "have", r.Len()).
				Wrapf(qerrors.ErrBadLength, "var bytes")
		}
		if n == 0 {
			*e = nil
			return nil
		}
		buf := make([]byte, n)
		if err := readFull(r, buf, element); err != nil {
			return err
		}
		*e = buf
	case *TrailingBytes:
		if r.Len() == 0 {
			*e = nil
			return nil
		}
		buf := make([]byte, r.Len())
		if err := readFull(r, buf, element); err != nil {
			return err
		}
		*e = buf
	default:
		return oops.In("wire").Errorf("unknown element type %T", element)
	}
	return nil
}
