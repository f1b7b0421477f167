// conduit.go implements the two-direction framed cipher.
//
// Frame format:
//
//	+----------------------------+--------------------------------+
//	| enc(u16 length) || tag(16) | enc(message) || tag(16)        |
//	|         18 bytes           |         L + 16 bytes           |
//	+----------------------------+--------------------------------+
//
// Inbound bytes accumulate until a whole header is buffered. The header is
// decrypted once and its length cached, so a body split across many reads
// does not replay the header's nonce. Decoded frames advance a read offset;
// the accumulator is compacted at most once per Feed.
package transport

import (
	"encoding/binary"

	"github.com/pzverkov/bolt8/internal/constants"
	qerrors "github.com/pzverkov/bolt8/internal/errors"
)

// Conduit encrypts outbound messages and decrypts inbound frames.
// It is not safe for concurrent use.
type Conduit struct {
	send *CipherState
	recv *CipherState

	buf        []byte
	off        int // start of the undecrypted bytes in buf
	pendingLen int // decrypted length of the frame in progress, -1 if none
}

// NewConduit builds a conduit from the handshake outputs. Both directions
// start from the same chaining key.
func NewConduit(sendKey, recvKey, ck [constants.KeySize]byte) *Conduit {
	return &Conduit{
		send:       NewCipherState(sendKey, ck),
		recv:       NewCipherState(recvKey, ck),
		pendingLen: -1,
	}
}

// Encrypt frames msg. Messages above 65535 bytes are rejected before any
// cipher state is touched.
func (c *Conduit) Encrypt(msg []byte) ([]byte, error) {
	if len(msg) > constants.MaxMessageSize {
		return nil, qerrors.ErrMessageTooLarge
	}

	var lenBuf [constants.LengthHeaderSize]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))

	header, err := c.send.Seal(nil, lenBuf[:])
	if err != nil {
		return nil, err
	}
	body, err := c.send.Seal(nil, msg)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(header)+len(body))
	frame = append(frame, header...)
	return append(frame, body...), nil
}

// Feed appends inbound bytes to the accumulator.
func (c *Conduit) Feed(data []byte) {
	c.compact()
	c.buf = append(c.buf, data...)
}

// compact moves the undecrypted tail to the front of buf.
func (c *Conduit) compact() {
	if c.off == 0 {
		return
	}
	n := copy(c.buf, c.buf[c.off:])
	c.buf = c.buf[:n]
	c.off = 0
}

// Next decrypts the next complete frame. It returns (nil, nil) when more
// bytes are needed. Any error is terminal for the conduit.
func (c *Conduit) Next() ([]byte, error) {
	if c.pendingLen < 0 {
		if c.Buffered() < constants.EncryptedHeaderSize {
			return nil, nil
		}
		lenBuf, err := c.recv.Open(nil, c.buf[c.off:c.off+constants.EncryptedHeaderSize])
		if err != nil {
			return nil, qerrors.NewProtocolError("length header", err)
		}
		c.pendingLen = int(binary.BigEndian.Uint16(lenBuf))
		c.consume(constants.EncryptedHeaderSize)
	}

	need := c.pendingLen + constants.TagSize
	if c.Buffered() < need {
		return nil, nil
	}
	msg, err := c.recv.Open(nil, c.buf[c.off:c.off+need])
	if err != nil {
		return nil, qerrors.NewProtocolError("message body", err)
	}
	c.consume(need)
	c.pendingLen = -1
	if msg == nil {
		msg = []byte{}
	}
	return msg, nil
}

// Decrypt feeds data and drains every complete frame. On error the frames
// decrypted before the failure are still returned.
func (c *Conduit) Decrypt(data []byte) ([][]byte, error) {
	c.Feed(data)
	var msgs [][]byte
	for {
		msg, err := c.Next()
		if err != nil {
			return msgs, err
		}
		if msg == nil {
			return msgs, nil
		}
		msgs = append(msgs, msg)
	}
}

func (c *Conduit) consume(n int) {
	c.off += n
	if c.off == len(c.buf) {
		c.buf, c.off = c.buf[:0], 0
	}
}

// Buffered returns the number of undecrypted inbound bytes held.
func (c *Conduit) Buffered() int {
	return len(c.buf) - c.off
}

// Send returns the outbound cipher state.
func (c *Conduit) Send() *CipherState { return c.send }

// Recv returns the inbound cipher state.
func (c *Conduit) Recv() *CipherState { return c.recv }

// Rotations returns the rotation count of the given direction.
func (c *Conduit) Rotations(d Direction) uint64 {
	if d == Outbound {
		return c.send.rotations
	}
	return c.recv.rotations
}

// Close zeroes both directions and drops buffered input.
func (c *Conduit) Close() {
	c.send.Zeroize()
	c.recv.Zeroize()
	c.buf, c.off = nil, 0
	c.pendingLen = -1
}
