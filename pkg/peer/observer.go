package peer

import "context"

// Observer provides hooks for peer lifecycle, metrics, and tracing.
// Implementations should be lightweight; callbacks run on the peer's hot path.
type Observer interface {
	OnHandshakeStart(ctx context.Context, role string) (context.Context, func(error))
	OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error))
	OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error))
	OnKeyRotation(direction string)
	OnAuthFailure()
	OnProtocolError(err error)
	OnDisconnect(err error)
}

// ObserverFactory builds a per-peer observer.
type ObserverFactory func(p *Peer) Observer

// ManagerObserver receives Manager-level events.
type ManagerObserver interface {
	OnPeerConnected(nodeID string)
	OnPeerDisconnected(nodeID string, err error)
	// OnHandshakeRateLimit is called when an inbound connection is refused
	// by the handshake rate limiter.
	OnHandshakeRateLimit()
	// OnPeerLimit is called when a connection is refused because the
	// manager is full.
	OnPeerLimit()
}

// NoOpObserver implements Observer and ManagerObserver with no effect.
type NoOpObserver struct{}

var (
	_ Observer        = NoOpObserver{}
	_ ManagerObserver = NoOpObserver{}
)

func noop(error) {}

func (NoOpObserver) OnHandshakeStart(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, noop
}

func (NoOpObserver) OnEncrypt(ctx context.Context, _ int) (context.Context, func(error)) {
	return ctx, noop
}

func (NoOpObserver) OnDecrypt(ctx context.Context, _ int) (context.Context, func(error)) {
	return ctx, noop
}

func (NoOpObserver) OnKeyRotation(string)             {}
func (NoOpObserver) OnAuthFailure()                   {}
func (NoOpObserver) OnProtocolError(error)            {}
func (NoOpObserver) OnDisconnect(error)               {}
func (NoOpObserver) OnPeerConnected(string)           {}
func (NoOpObserver) OnPeerDisconnected(string, error) {}
func (NoOpObserver) OnHandshakeRateLimit()            {}
func (NoOpObserver) OnPeerLimit()                     {}

func observerFromConfig(cfg Config, p *Peer) Observer {
	if cfg.ObserverFactory != nil {
		if o := cfg.ObserverFactory(p); o != nil {
			return o
		}
	}
	if cfg.Observer != nil {
		return cfg.Observer
	}
	return NoOpObserver{}
}
