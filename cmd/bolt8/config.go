package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pzverkov/bolt8/internal/constants"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/peer"
)

// Configuration keys. Environment variables use the BOLT8_ prefix with dots
// replaced by underscores, e.g. BOLT8_MANAGER_MAX_PEERS.
const (
	keyLogLevel       = "log.level"
	keyLogFormat      = "log.format"
	keyNodeSecret     = "node.secret"
	keyPingInterval   = "peer.ping_interval"
	keyMaxReadBuffer  = "peer.max_read_buffer"
	keyHandshakeRate  = "manager.handshake_rate"
	keyHandshakeBurst = "manager.handshake_burst"
	keyMaxPeers       = "manager.max_peers"
)

const (
	envPrefix        = "BOLT8"
	configDir        = ".bolt8"
	defaultLogLevel  = "warn"
	defaultLogFormat = "text"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyLogLevel, defaultLogLevel)
	v.SetDefault(keyLogFormat, defaultLogFormat)
	v.SetDefault(keyNodeSecret, "")
	v.SetDefault(keyPingInterval, time.Duration(constants.PingIntervalSeconds)*time.Second)
	v.SetDefault(keyMaxReadBuffer, constants.DefaultMaxReadBuffer)
	v.SetDefault(keyHandshakeRate, 0.0)
	v.SetDefault(keyHandshakeBurst, 0)
	v.SetDefault(keyMaxPeers, 0)
}

// loadConfig reads cfgFile, or config.yaml under $HOME/.bolt8 when cfgFile
// is empty. A missing default file is not an error.
func loadConfig(v *viper.Viper, cfgFile string) error {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDir))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func newLogger(v *viper.Viper, out io.Writer) (*metrics.Logger, error) {
	level, err := metrics.ParseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return nil, err
	}
	format, err := metrics.ParseFormat(v.GetString(keyLogFormat))
	if err != nil {
		return nil, err
	}
	return metrics.NewLogger(
		metrics.WithOutput(out),
		metrics.WithLevel(level),
		metrics.WithFormat(format),
		metrics.WithFields(metrics.Fields{"app": "bolt8"}),
	), nil
}

// nodeConfig is everything a node needs besides its handlers.
type nodeConfig struct {
	// Secret is the node key. Zero means generate one.
	Secret       crypto.PrivateKey
	PingInterval time.Duration
	Manager      peer.ManagerConfig
}

func nodeConfigFromViper(v *viper.Viper) (nodeConfig, error) {
	var nc nodeConfig

	if s := v.GetString(keyNodeSecret); s != "" {
		secret, err := crypto.PrivateKeyFromHex(s)
		if err != nil {
			return nc, fmt.Errorf("%s: %w", keyNodeSecret, err)
		}
		nc.Secret = secret
	}

	nc.PingInterval = v.GetDuration(keyPingInterval)
	if nc.PingInterval <= 0 {
		return nc, fmt.Errorf("%s must be positive, got %v", keyPingInterval, nc.PingInterval)
	}

	nc.Manager = peer.DefaultManagerConfig()
	nc.Manager.Peer.MaxReadBuffer = v.GetInt(keyMaxReadBuffer)
	nc.Manager.HandshakeRate = v.GetFloat64(keyHandshakeRate)
	nc.Manager.HandshakeBurst = v.GetInt(keyHandshakeBurst)
	nc.Manager.MaxPeers = v.GetInt(keyMaxPeers)
	if err := nc.Manager.Validate(); err != nil {
		return nc, err
	}
	return nc, nil
}

// setupTracer installs the tracer named by mode as the global tracer.
func setupTracer(mode string) (metrics.Tracer, error) {
	var tracer metrics.Tracer
	switch strings.ToLower(mode) {
	case "none", "":
		tracer = metrics.NoOpTracer{}
	case "simple":
		tracer = metrics.NewSimpleTracer()
	case "otel":
		if !metrics.OTelEnabled() {
			return nil, errors.New("otel tracing not enabled (build with -tags otel)")
		}
		tracer = metrics.NewOTelTracer("bolt8")
	default:
		return nil, fmt.Errorf("invalid tracing mode: %s (use none, simple, or otel)", mode)
	}
	metrics.SetTracer(tracer)
	return tracer, nil
}
