// Package metrics provides observability for bolt8 peers and managers.
//
// # Overview
//
// The package bundles:
//   - a Collector of counters and histograms
//   - a Prometheus text exporter
//   - a Tracer interface with an in-memory SimpleTracer and an OpenTelemetry
//     adapter (build with -tags otel)
//   - a structured Logger on top of logrus
//   - health checks and an HTTP server exposing all of the above
//
// # Wiring into peers
//
// PeerObserver and NodeObserver satisfy peer.Observer and
// peer.ManagerObserver:
//
//	collector := metrics.NewCollector(metrics.Labels{"node": "alice"})
//	logger := metrics.NewLogger(metrics.WithLevel(metrics.LevelDebug))
//
//	cfg := peer.DefaultManagerConfig()
//	cfg.Logger = logger
//	cfg.Observer = metrics.NewNodeObserver(metrics.NodeObserverConfig{
//		Collector: collector,
//		Logger:    logger,
//	})
//	cfg.Peer.ObserverFactory = func(p *peer.Peer) peer.Observer {
//		return metrics.NewPeerObserver(metrics.PeerObserverConfig{
//			Collector: collector,
//			Logger:    logger,
//			Role:      p.Role().String(),
//		})
//	}
//	mgr, err := peer.NewManager(keys, channelHandler, routingHandler, cfg)
//
// # Logging
//
//	logger := metrics.NewLogger(
//		metrics.WithFormat(metrics.FormatJSON),
//		metrics.WithFields(metrics.Fields{"service": "bolt8"}),
//	)
//	logger.Named("peer").With(metrics.Fields{"peer": id}).Info("connected")
//
// WithSink receives every formatted line, which is how host log callbacks
// are fed.
//
// # Exporting
//
//	server := metrics.NewServer(metrics.ServerConfig{
//		Collector:        collector,
//		Version:          version.String(),
//		EnablePrometheus: true,
//		EnableHealth:     true,
//	})
//	server.AddHealthCheck("peers", metrics.PeerCountCheck(mgr.PeerCount, 1))
//	go server.ListenAndServe(ctx, ":9090")
//
// The server exposes /metrics, /metrics.json, /health, /live and /ready and
// shuts down when ctx is done. Health checks run concurrently, each under
// its own timeout; a failing critical check makes the node unhealthy and a
// failing warning only degrades it.
package metrics
