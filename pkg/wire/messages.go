// Package wire implements the BOLT #1 message codec carried over the
// encrypted transport.
//
// Every message is a 2-byte big-endian type followed by a payload built from
// a fixed alphabet of typed elements (see elements.go):
//
//	+----------+---------------------------------------+
//	| type u16 | field 1 | field 2 | ... | [trailing]  |
//	+----------+---------------------------------------+
//
// Recognised messages:
//
//	Init              (16)   globalfeatures:varbytes features:varbytes tlvs:trailing
//	Error             (17)   channel_id:32 data:varbytes
//	Ping              (18)   num_pong_bytes:u16 ignored:varbytes
//	Pong              (19)   ignored:varbytes
//	QueryChannelRange (263)  chain_hash:32 first_blocknum:u32 number_of_blocks:u32 tlvs:trailing
//
// Other types decode to *Unknown so the host can decide what to do with them.
package wire

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// MessageType identifies a message on the wire.
type MessageType uint16

// Message types
const (
	// MsgInit advertises features right after the handshake
	MsgInit MessageType = 16

	// MsgError reports a failure, optionally tied to a channel
	MsgError MessageType = 17

	// MsgPing requests a Pong and keeps the connection alive
	MsgPing MessageType = 18

	// MsgPong answers a Ping
	MsgPong MessageType = 19

	// MsgQueryChannelRange asks for channels opened in a block range
	MsgQueryChannelRange MessageType = 263
)

// String returns a human-readable name for the message type.
func (t MessageType) String() string {
	switch t {
	case MsgInit:
		return "Init"
	case MsgError:
		return "Error"
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	case MsgQueryChannelRange:
		return "QueryChannelRange"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// IsOdd reports whether the type is odd. Unknown odd messages may be
// ignored, unknown even ones should close the connection.
func (t MessageType) IsOdd() bool {
	return t%2 == 1
}

// Message is a typed BOLT #1 message. Encode and Decode handle the payload
// only; the type prefix is written by the package-level Encode.
type Message interface {
	MsgType() MessageType
	Encode(w *bytes.Buffer) error
	Decode(r *bytes.Reader) error
}

// Ping asks the remote for a Pong with NumPongBytes of padding.
type Ping struct {
	NumPongBytes uint16
	PaddingBytes VarBytes
}

// NewPing builds a ping with no padding.
func NewPing(numPongBytes uint16) *Ping {
	return &Ping{NumPongBytes: numPongBytes}
}

func (m *Ping) MsgType() MessageType { return MsgPing }

func (m *Ping) Encode(w *bytes.Buffer) error {
	return WriteElements(w, m.NumPongBytes, m.PaddingBytes)
}

func (m *Ping) Decode(r *bytes.Reader) error {
	return ReadElements(r, &m.NumPongBytes, &m.PaddingBytes)
}

// Pong answers a Ping.
type Pong struct {
	PongBytes VarBytes
}

// NewPong builds a pong carrying n zero bytes.
func NewPong(n uint16) *Pong {
	var b VarBytes
	if n > 0 {
		b = make(VarBytes, n)
	}
	return &Pong{PongBytes: b}
}

func (m *Pong) MsgType() MessageType { return MsgPong }

func (m *Pong) Encode(w *bytes.Buffer) error {
	return WriteElements(w, m.PongBytes)
}

func (m *Pong) Decode(r *bytes.Reader) error {
	return ReadElements(r, &m.PongBytes)
}

// QueryChannelRange asks for the short channel ids of channels confirmed in
// [FirstBlockHeight, FirstBlockHeight+NumBlocks).
type QueryChannelRange struct {
	ChainHash        Hash
	FirstBlockHeight uint32
	NumBlocks        uint32
	TLVs             TrailingBytes
}

func (m *QueryChannelRange) MsgType() MessageType { return MsgQueryChannelRange }

func (m *QueryChannelRange) Encode(w *bytes.Buffer) error {
	return WriteElements(w, m.ChainHash, m.FirstBlockHeight, m.NumBlocks, m.TLVs)
}

func (m *QueryChannelRange) Decode(r *bytes.Reader) error {
	return ReadElements(r, &m.ChainHash, &m.FirstBlockHeight, &m.NumBlocks, &m.TLVs)
}

// LastBlockHeight returns the last block covered by the query, clamped to
// the u32 range.
func (m *QueryChannelRange) LastBlockHeight() uint32 {
	if m.NumBlocks == 0 {
		return m.FirstBlockHeight
	}
	last := uint64(m.FirstBlockHeight) + uint64(m.NumBlocks) - 1
	if last > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(last)
}

// Init is the first message sent on an established connection.
type Init struct {
	GlobalFeatures VarBytes
	Features       VarBytes
	TLVs           TrailingBytes
}

func (m *Init) MsgType() MessageType { return MsgInit }

func (m *Init) Encode(w *bytes.Buffer) error {
	return WriteElements(w, m.GlobalFeatures, m.Features, m.TLVs)
}

func (m *Init) Decode(r *bytes.Reader) error {
	return ReadElements(r, &m.GlobalFeatures, &m.Features, &m.TLVs)
}

// Error reports a failure to the remote. An all-zero ChannelID refers to
// every channel of the connection.
type Error struct {
	ChannelID Hash
	Data      VarBytes
}

// NewError builds an error for the whole connection.
func NewError(msg string) *Error {
	return &Error{Data: VarBytes(msg)}
}

func (m *Error) MsgType() MessageType { return MsgError }

func (m *Error) Encode(w *bytes.Buffer) error {
	return WriteElements(w, m.ChannelID, m.Data)
}

func (m *Error) Decode(r *bytes.Reader) error {
	return ReadElements(r, &m.ChannelID, &m.Data)
}

// Error returns the data as text when it is printable.
func (m *Error) Error() string {
	s := string(m.Data)
	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsPrint(r) }) >= 0 {
		return fmt.Sprintf("remote error: %x", m.Data)
	}
	return "remote error: " + s
}

// Unknown carries a message whose type has no schema here. The payload is
// kept verbatim so it can be re-encoded byte for byte.
type Unknown struct {
	Type    MessageType
	Payload []byte
}

func (m *Unknown) MsgType() MessageType { return m.Type }

func (m *Unknown) Encode(w *bytes.Buffer) error {
	w.Write(m.Payload)
	return nil
}

func (m *Unknown) Decode(r *bytes.Reader) error {
	m.Payload = nil
	if r.Len() == 0 {
		return nil
	}
	m.Payload = make([]byte, r.Len())
	_, err := r.Read(m.Payload)
	return err
}
