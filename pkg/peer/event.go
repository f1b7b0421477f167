package peer

import (
	"fmt"

	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/wire"
)

// Event is something the host must act on. It is one of SendBytes,
// Message, HandshakeComplete or Disconnect.
type Event interface {
	isEvent()
	String() string
}

// SendBytes carries bytes to write to the socket, in order.
type SendBytes struct {
	Data []byte
}

// Message is a decoded inbound message. Payload excludes the 2-byte type.
// Msg is *wire.Unknown for types without a schema.
type Message struct {
	Type    wire.MessageType
	Payload []byte
	Msg     wire.Message
}

// HandshakeComplete reports the authenticated static key of the remote.
type HandshakeComplete struct {
	RemoteStatic crypto.PublicKey
}

// Disconnect is terminal. No event follows it.
type Disconnect struct {
	Err  error
	Kind qerrors.Kind
}

func (SendBytes) isEvent()         {}
func (Message) isEvent()           {}
func (HandshakeComplete) isEvent() {}
func (Disconnect) isEvent()        {}

func (e SendBytes) String() string { return fmt.Sprintf("SendBytes(%d)", len(e.Data)) }

func (e Message) String() string {
	return fmt.Sprintf("Message(%s, %d)", e.Type, len(e.Payload))
}

func (e HandshakeComplete) String() string {
	return fmt.Sprintf("HandshakeComplete(%s)", e.RemoteStatic)
}

func (e Disconnect) String() string { return fmt.Sprintf("Disconnect(%s)", e.Kind) }

func newDisconnect(err error) Disconnect {
	return Disconnect{Err: err, Kind: qerrors.KindOf(err)}
}
