package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/samber/oops"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
)

// makeEmptyMessage returns a zero message for t, or nil if t has no schema.
func makeEmptyMessage(t MessageType) Message {
	switch t {
	case MsgInit:
		return &Init{}
	case MsgError:
		return &Error{}
	case MsgPing:
		return &Ping{}
	case MsgPong:
		return &Pong{}
	case MsgQueryChannelRange:
		return &QueryChannelRange{}
	default:
		return nil
	}
}

// IsKnown reports whether t has a schema in this package.
func IsKnown(t MessageType) bool {
	return makeEmptyMessage(t) != nil
}

// Encode serializes msg with its type prefix. The result is one transport
// message and is rejected if it cannot fit in a frame.
func Encode(msg Message) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := WriteMessage(buf, msg); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// WriteMessage appends the type prefix and payload of msg to w.
func WriteMessage(w *bytes.Buffer, msg Message) error {
	start := w.Len()

	var prefix [constants.MessageTypeSize]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(msg.MsgType()))
	w.Write(prefix[:])

	if err := msg.Encode(w); err != nil {
		w.Truncate(start)
		return oops.In("wire").With("type", msg.MsgType().String()).Wrapf(err, "encode")
	}
	if n := w.Len() - start; n > constants.MaxMessageSize {
		w.Truncate(start)
		return oops.In("wire").
			With("type", msg.MsgType().String(), "size", n).
			Wrapf(qerrors.ErrMessageTooLarge, "encode")
	}
	return nil
}

// Decode parses one transport message. Types without a schema come back as
// *Unknown with a nil error. Every byte must be consumed by the schema.
func Decode(b []byte) (Message, error) {
	if len(b) < constants.MessageTypeSize {
		return nil, oops.In("wire").With("size", len(b)).Wrapf(qerrors.ErrShortField, "type prefix")
	}
	if len(b) > constants.MaxMessageSize {
		return nil, oops.In("wire").With("size", len(b)).Wrapf(qerrors.ErrMessageTooLarge, "decode")
	}

	t := MessageType(binary.BigEndian.Uint16(b))
	r := bytes.NewReader(b[constants.MessageTypeSize:])

	msg := makeEmptyMessage(t)
	if msg == nil {
		msg = &Unknown{Type: t}
	}
	if err := msg.Decode(r); err != nil {
		return nil, oops.In("wire").With("type", t.String()).Wrapf(err, "decode")
	}
	if r.Len() != 0 {
		return nil, oops.In("wire").
			With("type", t.String(), "extra", r.Len()).
			Wrapf(qerrors.ErrExtraBytes, "decode")
	}
	return msg, nil
}

// DecodeKnown is Decode for callers that only accept typed messages. It
// returns ErrUnknownMessageType, which is not fatal, for other types.
func DecodeKnown(b []byte) (Message, error) {
	msg, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if u, ok := msg.(*Unknown); ok {
		return msg, oops.In("wire").With("type", uint16(u.Type)).Wrapf(qerrors.ErrUnknownMessageType, "decode")
	}
	return msg, nil
}
