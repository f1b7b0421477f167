package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/peer"
	"github.com/pzverkov/bolt8/pkg/wire"
)

type demoOptions struct {
	messages int
	ticks    int
	tick     time.Duration
	timeout  time.Duration
	obsAddr  string
	tracing  string
	verbose  bool
}

func (c *cli) demoCmd() *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run two nodes over an in-memory pipe",
		Long: `Run two peer managers, alice and bob, connected by net.Pipe. Alice dials
bob, both sides exchange Init, a few timer ticks drive Ping/Pong, then alice
sends gossip queries until both directions have rotated their keys. Metrics
collected along the way are printed at the end.`,
		Example: `  bolt8 demo
  bolt8 demo --messages 2000 --verbose
  bolt8 demo --obs-addr :9090 --tracing simple --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDemo(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.messages, "messages", 600, "number of query_channel_range messages alice sends")
	f.IntVar(&opts.ticks, "ticks", 3, "timer ticks to run before sending queries")
	f.DurationVar(&opts.tick, "tick", 100*time.Millisecond, "time between timer ticks")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	f.StringVar(&opts.obsAddr, "obs-addr", "", "serve /metrics and /health on this address while running")
	f.StringVar(&opts.tracing, "tracing", "none", "tracing mode: none, simple, otel (requires -tags otel)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print each step")
	return cmd
}

// demoNode is one side of the demo with the handler state it records.
type demoNode struct {
	name     string
	m        *peer.Manager
	observer *metrics.NodeObserver

	connected    chan struct{}
	disconnected chan struct{}
	allQueries   chan struct{}
	connOnce     sync.Once
	discOnce     sync.Once
	queryOnce    sync.Once

	wantQueries atomic.Int64
	queries     atomic.Int64

	mu        sync.Mutex
	remoteErr string
}

func newDemoNode(name string, secret crypto.PrivateKey, cfg peer.ManagerConfig, collector *metrics.Collector, tracer metrics.Tracer, logger *metrics.Logger) (*demoNode, error) {
	if secret.IsZero() {
		var err error
		if secret, err = crypto.GeneratePrivateKey(); err != nil {
			return nil, err
		}
	}

	n := &demoNode{
		name:         name,
		connected:    make(chan struct{}),
		disconnected: make(chan struct{}),
		allQueries:   make(chan struct{}),
	}
	n.wantQueries.Store(-1)

	logger = logger.With(metrics.Fields{"node": name})
	n.observer = metrics.NewNodeObserver(metrics.NodeObserverConfig{
		Collector: collector,
		Logger:    logger,
		NodeName:  name,
	})
	cfg.Logger = logger
	cfg.Observer = n.observer
	cfg.Peer.ObserverFactory = func(p *peer.Peer) peer.Observer {
		return metrics.NewPeerObserver(metrics.PeerObserverConfig{
			Collector: collector,
			Tracer:    tracer,
			Logger:    logger,
			Role:      p.Role().String(),
		})
	}

	keys := peer.KeysFuncs{NodeSecretFn: func() crypto.PrivateKey { return secret }}
	channel := peer.ChannelMessageHandlerFuncs{
		PeerConnectedFn: func(crypto.PublicKey, *wire.Init) error {
			n.connOnce.Do(func() { close(n.connected) })
			return nil
		},
		PeerDisconnectedFn: func(crypto.PublicKey) {
			n.discOnce.Do(func() { close(n.disconnected) })
		},
		HandleErrorFn: func(_ crypto.PublicKey, msg *wire.Error) error {
			n.mu.Lock()
			n.remoteErr = msg.Error()
			n.mu.Unlock()
			return nil
		},
	}
	routing := peer.RoutingMessageHandlerFuncs{
		HandleQueryChannelRangeFn: func(crypto.PublicKey, *wire.QueryChannelRange) error {
			if n.queries.Add(1) == n.wantQueries.Load() {
				n.queryOnce.Do(func() { close(n.allQueries) })
			}
			return nil
		},
	}

	m, err := peer.NewManager(keys, channel, routing, cfg)
	if err != nil {
		return nil, err
	}
	n.m = m
	return n, nil
}

func (n *demoNode) remoteError() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remoteErr
}

// wait blocks until ch is closed or ctx ends.
func wait(ctx context.Context, ch <-chan struct{}, what string) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
	}
}

func (c *cli) runDemo(ctx context.Context, out io.Writer, opts demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	nc, err := nodeConfigFromViper(c.v)
	if err != nil {
		return err
	}
	tracer, err := setupTracer(opts.tracing)
	if err != nil {
		return err
	}
	logger := c.logger
	if logger == nil {
		logger = metrics.GetLogger()
	}

	collector := metrics.NewCollector(metrics.Labels{"service": "bolt8"})
	metrics.SetGlobal(collector)

	step := func(format string, args ...any) {
		if opts.verbose {
			fmt.Fprintf(out, "  "+format+"\n", args...)
		}
	}

	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║      bolt8 demo: alice ⇄ bob over net.Pipe                ║")
	fmt.Fprintln(out, "║      Noise_XK_secp256k1_ChaChaPoly_SHA256                 ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	aliceCfg := nc.Manager
	aliceCfg.Features = []byte{0x08} // initial_routing_sync
	alice, err := newDemoNode("alice", nc.Secret, aliceCfg, collector, tracer, logger)
	if err != nil {
		return fmt.Errorf("alice: %w", err)
	}
	bob, err := newDemoNode("bob", crypto.PrivateKey{}, nc.Manager, collector, tracer, logger)
	if err != nil {
		return fmt.Errorf("bob: %w", err)
	}
	defer alice.m.Close()
	defer bob.m.Close()

	fmt.Fprintf(out, "alice: %s\n", alice.m.NodeID())
	fmt.Fprintf(out, "bob:   %s\n\n", bob.m.NodeID())

	if opts.obsAddr != "" {
		stop, err := serveObservability(opts.obsAddr, collector, logger, alice)
		if err != nil {
			return err
		}
		defer stop()
		fmt.Fprintf(out, "✓ Observability server on %s (metrics: /metrics, health: /health)\n", opts.obsAddr)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	connA, connB := net.Pipe()
	go func() {
		<-ctx.Done()
		_ = connA.Close()
		_ = connB.Close()
	}()
	sa, sb := newConnSocket(connA, 256), newConnSocket(connB, 256)

	if err := bob.m.NewInboundConnection(sb); err != nil {
		return err
	}
	act, err := alice.m.NewOutboundConnection(bob.m.NodeID(), sa)
	if err != nil {
		return err
	}
	if n := sa.SendData(act); n != len(act) {
		return errors.New("socket refused act one")
	}
	step("alice → bob: act one (%d bytes)", len(act))

	g := new(errgroup.Group)
	g.Go(func() error { return sa.writeLoop(alice.m) })
	g.Go(func() error { return sa.readLoop(alice.m) })
	g.Go(func() error { return sb.writeLoop(bob.m) })
	g.Go(func() error { return sb.readLoop(bob.m) })

	if err := wait(ctx, alice.connected, "alice init"); err != nil {
		return err
	}
	if err := wait(ctx, bob.connected, "bob init"); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Handshake complete, Init exchanged")

	for i := 0; i < opts.ticks; i++ {
		alice.m.TimerTick()
		bob.m.TimerTick()
		step("tick %d", i+1)
		select {
		case <-time.After(opts.tick):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if alice.m.PeerCount() != 1 || bob.m.PeerCount() != 1 {
		return errors.New("peers dropped during heartbeat")
	}
	fmt.Fprintf(out, "✓ %d heartbeat ticks answered (ping/pong)\n", opts.ticks)

	if opts.messages > 0 {
		bob.wantQueries.Store(int64(opts.messages))
		start := time.Now()
		for i := 0; i < opts.messages; i++ {
			q := &wire.QueryChannelRange{FirstBlockHeight: uint32(600000 + i*144), NumBlocks: 144}
			if err := alice.m.SendMessage(bob.m.NodeID(), q); err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
		}
		if err := wait(ctx, bob.allQueries, "queries"); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ %d query_channel_range messages delivered in %v\n", opts.messages, time.Since(start).Round(time.Millisecond))
	}

	health := metrics.NewHealthCheck(collector, getVersion())
	health.AddCheck("peers", metrics.PeerCountCheck(alice.m.PeerCount, 1))
	health.AddCheck("memory", metrics.MemoryCheck(512<<20))
	fmt.Fprintf(out, "✓ Health: %s\n", health.Check(ctx).Status)

	if err := alice.m.DisconnectPeer(bob.m.NodeID(), wire.NewError("demo finished")); err != nil {
		return err
	}
	if err := wait(ctx, bob.disconnected, "bob disconnect"); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ bob received error %q and disconnected\n", bob.remoteError())

	cancel()
	_ = g.Wait()

	printDemoMetrics(out, collector.Snapshot())
	if st, ok := tracer.(*metrics.SimpleTracer); ok {
		fmt.Fprintf(out, "\nTraced %d spans\n", len(st.Spans()))
	}
	return nil
}

func printDemoMetrics(out io.Writer, s metrics.Snapshot) {
	fmt.Fprintln(out, "\nMetrics:")
	fmt.Fprintf(out, "  Handshakes:      %d (%d failed)\n", s.HandshakesTotal, s.HandshakesFailed)
	fmt.Fprintf(out, "  Peers:           %d total, %d active\n", s.PeersTotal, s.PeersActive)
	fmt.Fprintf(out, "  Messages sent:   %d (%s)\n", s.MessagesSent, formatSize(int64(s.BytesSent)))
	fmt.Fprintf(out, "  Reads:           %d (%s)\n", s.ReadsProcessed, formatSize(int64(s.BytesReceived)))
	fmt.Fprintf(out, "  Key rotations:   %d sent, %d received\n", s.KeyRotationsSent, s.KeyRotationsRecv)
	fmt.Fprintf(out, "  Disconnects:     %d\n", s.Disconnects)
	if s.HandshakeLatency.Count > 0 {
		fmt.Fprintf(out, "  Handshake time:  %.1f ms mean\n", s.HandshakeLatency.Mean)
	}
}

// serveObservability starts the metrics server and returns its shutdown.
func serveObservability(addr string, collector *metrics.Collector, logger *metrics.Logger, node *demoNode) (func(), error) {
	obs := metrics.NewServer(metrics.ServerConfig{
		Collector:        collector,
		Version:          getVersion(),
		EnablePrometheus: true,
		EnableHealth:     true,
	})
	obs.AddHealthCheck("peers", metrics.PeerCountCheck(node.m.PeerCount, 1))
	obs.Health().AddWarning("handshakes", metrics.HandshakeFailureCheck(collector, 0.5))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := obs.Serve(ctx, ln); err != nil {
			logger.Error("observability server error", metrics.Fields{"error": err.Error()})
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}
