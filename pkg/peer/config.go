package peer

import (
	"errors"

	"github.com/pzverkov/bolt8/internal/constants"
	"github.com/pzverkov/bolt8/pkg/metrics"
)

// Config holds per-peer settings.
type Config struct {
	// MaxReadBuffer caps the undecrypted inbound bytes held for one peer.
	// Default: one maximum frame plus a frame header
	MaxReadBuffer int

	// Observer is shared by every peer (ignored if ObserverFactory is set).
	Observer Observer

	// ObserverFactory builds a per-peer observer (takes precedence over Observer).
	ObserverFactory ObserverFactory

	// Logger receives peer lifecycle logs. Default: the global logger.
	Logger *metrics.Logger
}

// DefaultConfig returns the default peer configuration.
func DefaultConfig() Config {
	return Config{
		MaxReadBuffer: constants.DefaultMaxReadBuffer,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxReadBuffer < 0 {
		return errors.New("peer: MaxReadBuffer cannot be negative")
	}
	if c.MaxReadBuffer > 0 && c.MaxReadBuffer < constants.ActThreeSize {
		return errors.New("peer: MaxReadBuffer cannot hold a handshake act")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxReadBuffer == 0 {
		c.MaxReadBuffer = constants.DefaultMaxReadBuffer
	}
	if c.Logger == nil {
		c.Logger = metrics.GetLogger()
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithMaxReadBuffer sets Config.MaxReadBuffer.
func WithMaxReadBuffer(n int) Option {
	return func(c *Config) { c.MaxReadBuffer = n }
}

// WithObserver sets a shared observer.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// WithObserverFactory sets a per-peer observer factory.
func WithObserverFactory(f ObserverFactory) Option {
	return func(c *Config) { c.ObserverFactory = f }
}

// WithLogger sets the peer logger.
func WithLogger(l *metrics.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}
