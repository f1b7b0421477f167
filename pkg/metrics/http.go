package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsReadTimeout       = 10 * time.Second
	metricsWriteTimeout      = 10 * time.Second
	metricsIdleTimeout       = 120 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

// Server exposes a node's metrics and health over HTTP:
//
//	/metrics       Prometheus text format
//	/metrics.json  the collector snapshot as JSON
//	/health        HealthResponse, 503 when unhealthy
//	/live, /ready  probes
type Server struct {
	mux       *http.ServeMux
	collector *Collector
	health    *HealthCheck
}

// ServerConfig configures the observability server.
type ServerConfig struct {
	Collector        *Collector
	Version          string
	Namespace        string // Prometheus namespace
	EnablePrometheus bool
	EnableHealth     bool
}

// NewServer creates a new observability server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "bolt8"
	}

	s := &Server{mux: http.NewServeMux(), collector: cfg.Collector}

	if cfg.EnablePrometheus {
		s.mux.Handle("/metrics", NewPrometheusExporter(cfg.Collector, cfg.Namespace).Handler())
		s.mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.collector.Snapshot())
		})
	}
	if cfg.EnableHealth {
		s.health = NewHealthCheck(cfg.Collector, cfg.Version)
		s.mux.Handle("/health", s.health.Handler())
		s.mux.Handle("/live", s.health.LiveHandler())
		s.mux.Handle("/ready", s.health.ReadyHandler())
	}
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Health returns the server's HealthCheck, or nil when health is disabled.
func (s *Server) Health() *HealthCheck {
	return s.health
}

// AddHealthCheck registers a critical check. It is a no-op when health is
// disabled.
func (s *Server) AddHealthCheck(name string, fn CheckFunc) {
	if s.health != nil {
		s.health.AddCheck(name, fn)
	}
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := newHTTPServer(ln.Addr().String(), s.mux)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		ReadTimeout:       metricsReadTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}
}
