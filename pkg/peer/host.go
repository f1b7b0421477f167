package peer

import (
	qerrors "github.com/pzverkov/bolt8/internal/errors"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/wire"
)

// Host collaborators. Each interface has a ...Funcs adaptor so a host can
// supply a plain table of functions instead of a type. A nil function in a
// table is a no-op returning zero values.

// Logger receives formatted log lines from the core.
type Logger interface {
	Log(level metrics.Level, line string)
}

// LoggerFuncs adapts a function to Logger.
type LoggerFuncs struct {
	LogFn func(level metrics.Level, line string)
}

func (f LoggerFuncs) Log(level metrics.Level, line string) {
	if f.LogFn != nil {
		f.LogFn(level, line)
	}
}

// NewHostLogger returns a structured logger whose lines are forwarded to
// the host. Nothing is written anywhere else.
func NewHostLogger(l Logger, level metrics.Level) *metrics.Logger {
	return metrics.NewLogger(
		metrics.WithOutput(nil),
		metrics.WithLevel(level),
		metrics.WithSink(l.Log),
	)
}

// ConfirmationTarget is how urgently a transaction should confirm.
type ConfirmationTarget int

const (
	Background ConfirmationTarget = iota
	Normal
	HighPriority
)

// FeeEstimator reports feerates in satoshis per 1000 weight units. The
// transport never asks for a feerate; the interface is carried for the
// channel layer a host builds on top.
type FeeEstimator interface {
	EstSatPer1000Weight(target ConfirmationTarget) uint64
}

// FeeEstimatorFuncs adapts a function to FeeEstimator.
type FeeEstimatorFuncs struct {
	EstSatPer1000WeightFn func(target ConfirmationTarget) uint64
}

func (f FeeEstimatorFuncs) EstSatPer1000Weight(target ConfirmationTarget) uint64 {
	if f.EstSatPer1000WeightFn == nil {
		return 0
	}
	return f.EstSatPer1000WeightFn(target)
}

// BroadcasterInterface publishes serialized transactions. Nothing in this
// package broadcasts; it is carried for the channel layer.
type BroadcasterInterface interface {
	BroadcastTransaction(tx []byte)
}

// BroadcasterFuncs adapts a function to BroadcasterInterface.
type BroadcasterFuncs struct {
	BroadcastTransactionFn func(tx []byte)
}

func (f BroadcasterFuncs) BroadcastTransaction(tx []byte) {
	if f.BroadcastTransactionFn != nil {
		f.BroadcastTransactionFn(tx)
	}
}

// ChannelKeys holds the per-channel secrets of one channel. Peers and the
// Manager never read them; only KeysInterface.ChannelKeys hands them out.
type ChannelKeys interface {
	FundingKey() crypto.PrivateKey
	RevocationBaseKey() crypto.PrivateKey
	PaymentBaseKey() crypto.PrivateKey
	DelayedPaymentBaseKey() crypto.PrivateKey
	HTLCBaseKey() crypto.PrivateKey
	CommitmentSeed() [32]byte
}

// ChannelKeysFuncs adapts functions to ChannelKeys.
type ChannelKeysFuncs struct {
	FundingKeyFn            func() crypto.PrivateKey
	RevocationBaseKeyFn     func() crypto.PrivateKey
	PaymentBaseKeyFn        func() crypto.PrivateKey
	DelayedPaymentBaseKeyFn func() crypto.PrivateKey
	HTLCBaseKeyFn           func() crypto.PrivateKey
	CommitmentSeedFn        func() [32]byte
}

func callKey(fn func() crypto.PrivateKey) crypto.PrivateKey {
	if fn == nil {
		return crypto.PrivateKey{}
	}
	return fn()
}

func (f ChannelKeysFuncs) FundingKey() crypto.PrivateKey        { return callKey(f.FundingKeyFn) }
func (f ChannelKeysFuncs) RevocationBaseKey() crypto.PrivateKey { return callKey(f.RevocationBaseKeyFn) }
func (f ChannelKeysFuncs) PaymentBaseKey() crypto.PrivateKey    { return callKey(f.PaymentBaseKeyFn) }
func (f ChannelKeysFuncs) DelayedPaymentBaseKey() crypto.PrivateKey {
	return callKey(f.DelayedPaymentBaseKeyFn)
}
func (f ChannelKeysFuncs) HTLCBaseKey() crypto.PrivateKey { return callKey(f.HTLCBaseKeyFn) }

func (f ChannelKeysFuncs) CommitmentSeed() [32]byte {
	if f.CommitmentSeedFn == nil {
		return [32]byte{}
	}
	return f.CommitmentSeedFn()
}

// KeysInterface is the key factory of the node. The Manager takes the node
// secret and one ephemeral key per connection from it. ChannelKeys is not
// called by the transport.
type KeysInterface interface {
	NodeSecret() crypto.PrivateKey
	EphemeralKey() (crypto.PrivateKey, error)
	ChannelKeys(inbound bool) ChannelKeys
}

// KeysFuncs adapts functions to KeysInterface. A nil EphemeralKeyFn draws
// fresh keys from the system CSPRNG.
type KeysFuncs struct {
	NodeSecretFn   func() crypto.PrivateKey
	EphemeralKeyFn func() (crypto.PrivateKey, error)
	ChannelKeysFn  func(inbound bool) ChannelKeys
}

func (f KeysFuncs) NodeSecret() crypto.PrivateKey { return callKey(f.NodeSecretFn) }

func (f KeysFuncs) EphemeralKey() (crypto.PrivateKey, error) {
	if f.EphemeralKeyFn == nil {
		return crypto.GeneratePrivateKey()
	}
	return f.EphemeralKeyFn()
}

func (f KeysFuncs) ChannelKeys(inbound bool) ChannelKeys {
	if f.ChannelKeysFn == nil {
		return ChannelKeysFuncs{}
	}
	return f.ChannelKeysFn(inbound)
}

// ChannelMessageHandler handles connection-level and channel messages.
// Returning a *DisconnectError drops the peer.
type ChannelMessageHandler interface {
	PeerConnected(nodeID crypto.PublicKey, init *wire.Init) error
	PeerDisconnected(nodeID crypto.PublicKey)
	HandleError(nodeID crypto.PublicKey, msg *wire.Error) error
	HandleMessage(nodeID crypto.PublicKey, msg wire.Message) error
}

// ChannelMessageHandlerFuncs adapts functions to ChannelMessageHandler.
type ChannelMessageHandlerFuncs struct {
	PeerConnectedFn    func(nodeID crypto.PublicKey, init *wire.Init) error
	PeerDisconnectedFn func(nodeID crypto.PublicKey)
	HandleErrorFn      func(nodeID crypto.PublicKey, msg *wire.Error) error
	HandleMessageFn    func(nodeID crypto.PublicKey, msg wire.Message) error
}

func (f ChannelMessageHandlerFuncs) PeerConnected(nodeID crypto.PublicKey, init *wire.Init) error {
	if f.PeerConnectedFn == nil {
		return nil
	}
	return f.PeerConnectedFn(nodeID, init)
}

func (f ChannelMessageHandlerFuncs) PeerDisconnected(nodeID crypto.PublicKey) {
	if f.PeerDisconnectedFn != nil {
		f.PeerDisconnectedFn(nodeID)
	}
}

func (f ChannelMessageHandlerFuncs) HandleError(nodeID crypto.PublicKey, msg *wire.Error) error {
	if f.HandleErrorFn == nil {
		return nil
	}
	return f.HandleErrorFn(nodeID, msg)
}

func (f ChannelMessageHandlerFuncs) HandleMessage(nodeID crypto.PublicKey, msg wire.Message) error {
	if f.HandleMessageFn == nil {
		return nil
	}
	return f.HandleMessageFn(nodeID, msg)
}

// RoutingMessageHandler handles gossip queries.
type RoutingMessageHandler interface {
	HandleQueryChannelRange(nodeID crypto.PublicKey, msg *wire.QueryChannelRange) error
}

// RoutingMessageHandlerFuncs adapts a function to RoutingMessageHandler.
type RoutingMessageHandlerFuncs struct {
	HandleQueryChannelRangeFn func(nodeID crypto.PublicKey, msg *wire.QueryChannelRange) error
}

func (f RoutingMessageHandlerFuncs) HandleQueryChannelRange(nodeID crypto.PublicKey, msg *wire.QueryChannelRange) error {
	if f.HandleQueryChannelRangeFn == nil {
		return nil
	}
	return f.HandleQueryChannelRangeFn(nodeID, msg)
}

// SocketDescriptor is the host side of one connection. Implementations
// must be comparable (pointer types are) since the Manager keys peers by
// descriptor.
type SocketDescriptor interface {
	// SendData writes as much of data as possible and returns the count.
	// A short write pauses output until the Manager's WriteEvent.
	SendData(data []byte) int
	// DisconnectSocket closes the connection. The Manager has already
	// forgotten the peer; the host must not call DisconnectEvent.
	DisconnectSocket()
}

// SocketDescriptorFuncs adapts functions to SocketDescriptor. Use it by
// pointer.
type SocketDescriptorFuncs struct {
	SendDataFn         func(data []byte) int
	DisconnectSocketFn func()
}

func (f *SocketDescriptorFuncs) SendData(data []byte) int {
	if f.SendDataFn == nil {
		return len(data)
	}
	return f.SendDataFn(data)
}

func (f *SocketDescriptorFuncs) DisconnectSocket() {
	if f.DisconnectSocketFn != nil {
		f.DisconnectSocketFn()
	}
}

// DisconnectError asks the Manager to drop a peer, optionally sending an
// Error message first.
type DisconnectError struct {
	Err string
	Msg *wire.Error
}

func (e *DisconnectError) Error() string {
	return "peer: disconnect requested: " + e.Err
}

func (e *DisconnectError) Unwrap() error { return qerrors.ErrPeerDisconnected }
