package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the overall health state.
type HealthStatus string

const (
	// HealthStatusHealthy indicates all checks are passing.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates a warning check failed or the node's
	// transport error rate is above the limit.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates a critical check failed.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const (
	defaultCheckTimeout = 2 * time.Second
	defaultMaxErrorRate = 0.01
	maxConcurrentChecks = 4
	minHandshakeSamples = 10
)

// CheckFunc reports a problem as an error. It should give up once ctx is
// done.
type CheckFunc func(ctx context.Context) error

type registeredCheck struct {
	fn       CheckFunc
	critical bool
}

// HealthCheck combines registered checks with the collector's counters.
type HealthCheck struct {
	mu           sync.RWMutex
	checks       map[string]registeredCheck
	collector    *Collector
	started      time.Time
	version      string
	timeout      time.Duration
	maxErrorRate float64
}

// HealthResponse is the JSON body of /health.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Metrics   *HealthMetrics         `json:"metrics,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   HealthStatus `json:"status"`
	Critical bool         `json:"critical"`
	Message  string       `json:"message,omitempty"`
	Latency  string       `json:"latency,omitempty"`
}

// HealthMetrics are the collector values that feed the health status.
type HealthMetrics struct {
	PeersActive      uint64  `json:"peers_active"`
	PeersTotal       uint64  `json:"peers_total"`
	HandshakesFailed uint64  `json:"handshakes_failed"`
	AuthFailures     uint64  `json:"auth_failures"`
	Timeouts         uint64  `json:"timeouts"`
	ErrorRate        float64 `json:"error_rate"`
}

// NewHealthCheck creates a health check over collector, which may be nil.
func NewHealthCheck(collector *Collector, version string) *HealthCheck {
	return &HealthCheck{
		checks:       make(map[string]registeredCheck),
		collector:    collector,
		started:      time.Now(),
		version:      version,
		timeout:      defaultCheckTimeout,
		maxErrorRate: defaultMaxErrorRate,
	}
}

// AddCheck registers a critical check. Its failure makes the node unhealthy.
func (h *HealthCheck) AddCheck(name string, fn CheckFunc) {
	h.add(name, fn, true)
}

// AddWarning registers a check whose failure only degrades the node.
func (h *HealthCheck) AddWarning(name string, fn CheckFunc) {
	h.add(name, fn, false)
}

func (h *HealthCheck) add(name string, fn CheckFunc, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{fn: fn, critical: critical}
}

// RemoveCheck removes a named check.
func (h *HealthCheck) RemoveCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// SetCheckTimeout bounds each check. Zero or less keeps the current value.
func (h *HealthCheck) SetCheckTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	h.timeout = d
	h.mu.Unlock()
}

// SetMaxErrorRate sets the transport error rate above which the node is
// degraded.
func (h *HealthCheck) SetMaxErrorRate(r float64) {
	h.mu.Lock()
	h.maxErrorRate = r
	h.mu.Unlock()
}

// Check runs every check concurrently and derives the overall status.
func (h *HealthCheck) Check(ctx context.Context) HealthResponse {
	h.mu.RLock()
	checks := make(map[string]registeredCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	timeout, maxErrorRate := h.timeout, h.maxErrorRate
	h.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentChecks)
	for name, c := range checks {
		g.Go(func() error {
			r := runCheck(ctx, c, timeout)
			mu.Lock()
			resp.Checks[name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	degraded, unhealthy := false, false
	for _, r := range resp.Checks {
		if r.Status == HealthStatusHealthy {
			continue
		}
		if r.Critical {
			unhealthy = true
		} else {
			degraded = true
		}
	}

	if h.collector != nil {
		resp.Metrics = healthMetrics(h.collector.Snapshot())
		if resp.Metrics.ErrorRate > maxErrorRate {
			degraded = true
		}
	}

	switch {
	case unhealthy:
		resp.Status = HealthStatusUnhealthy
	case degraded:
		resp.Status = HealthStatusDegraded
	}
	return resp
}

func runCheck(ctx context.Context, c registeredCheck, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("check did not finish: %w", ctx.Err())
	}

	r := CheckResult{
		Status:   HealthStatusHealthy,
		Critical: c.critical,
		Latency:  time.Since(start).String(),
	}
	if err != nil {
		r.Status = HealthStatusUnhealthy
		if !c.critical {
			r.Status = HealthStatusDegraded
		}
		r.Message = err.Error()
	}
	return r
}

func healthMetrics(s Snapshot) *HealthMetrics {
	return &HealthMetrics{
		PeersActive:      s.PeersActive,
		PeersTotal:       s.PeersTotal,
		HandshakesFailed: s.HandshakesFailed,
		AuthFailures:     s.AuthFailures,
		Timeouts:         s.Timeouts,
		ErrorRate:        s.ErrorRate(),
	}
}

// Handler serves the full HealthResponse. Unhealthy answers 503.
func (h *HealthCheck) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// LiveHandler answers 200 while the process can serve HTTP at all.
func (h *HealthCheck) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
}

// ReadyHandler answers 200 unless a critical check fails.
func (h *HealthCheck) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		ready := resp.Status != HealthStatusUnhealthy
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": resp.Status, "ready": ready})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Common Health Checks ---

// MemoryCheck fails when the heap exceeds threshold bytes.
func MemoryCheck(threshold uint64) CheckFunc {
	return func(context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > threshold {
			return fmt.Errorf("heap %d bytes exceeds %d", ms.HeapAlloc, threshold)
		}
		return nil
	}
}

// PeerCountCheck fails while fewer than min peers are connected. count is
// usually a Manager's PeerCount.
func PeerCountCheck(count func() int, min int) CheckFunc {
	return func(context.Context) error {
		if n := count(); n < min {
			return fmt.Errorf("%d peers connected, want at least %d", n, min)
		}
		return nil
	}
}

// HandshakeFailureCheck fails when more than maxRatio of the collector's
// handshakes failed. It passes until a handful of handshakes were seen.
func HandshakeFailureCheck(c *Collector, maxRatio float64) CheckFunc {
	return func(context.Context) error {
		s := c.Snapshot()
		if s.HandshakesTotal < minHandshakeSamples {
			return nil
		}
		if s.HandshakeFailureRatio() > maxRatio {
			return fmt.Errorf("%d of %d handshakes failed", s.HandshakesFailed, s.HandshakesTotal)
		}
		return nil
	}
}
