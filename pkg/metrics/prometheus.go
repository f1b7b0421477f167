package metrics

import (
	"bufio"
	"bytes"
	"io"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

const promContentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders a Collector in the Prometheus text exposition
// format. Every family name is prefixed with the namespace and an
// underscore.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates an exporter for c.
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{collector: c, namespace: namespace}
}

// Handler serves the exposition. A failed render answers 500.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := e.WriteMetrics(&buf); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", promContentType)
		_, _ = buf.WriteTo(w)
	})
}

type promCounter struct {
	name, help string
	value      func(Snapshot) uint64
}

var promCounters = []promCounter{
	{"peers_total", "Peers that completed the Init exchange", func(s Snapshot) uint64 { return s.PeersTotal }},
	{"handshakes_total", "Handshakes started", func(s Snapshot) uint64 { return s.HandshakesTotal }},
	{"handshakes_failed_total", "Handshakes that did not complete", func(s Snapshot) uint64 { return s.HandshakesFailed }},
	{"messages_sent_total", "Transport messages framed", func(s Snapshot) uint64 { return s.MessagesSent }},
	{"bytes_sent_total", "Plaintext bytes framed", func(s Snapshot) uint64 { return s.BytesSent }},
	{"reads_total", "Inbound reads processed", func(s Snapshot) uint64 { return s.ReadsProcessed }},
	{"bytes_received_total", "Ciphertext bytes read", func(s Snapshot) uint64 { return s.BytesReceived }},
	{"auth_failures_total", "Authentication failures", func(s Snapshot) uint64 { return s.AuthFailures }},
	{"handshake_rate_limited_total", "Inbound connections refused by the handshake rate limit", func(s Snapshot) uint64 { return s.HandshakeRateLimits }},
	{"peer_limit_rejections_total", "Connections refused because the peer table was full", func(s Snapshot) uint64 { return s.PeerLimitRejections }},
	{"encrypt_errors_total", "Failed encryptions", func(s Snapshot) uint64 { return s.EncryptErrors }},
	{"decrypt_errors_total", "Failed decryptions", func(s Snapshot) uint64 { return s.DecryptErrors }},
	{"protocol_errors_total", "Protocol violations", func(s Snapshot) uint64 { return s.ProtocolErrors }},
	{"disconnects_total", "Peer teardowns", func(s Snapshot) uint64 { return s.Disconnects }},
	{"timeouts_total", "Peers dropped by the liveness timer", func(s Snapshot) uint64 { return s.Timeouts }},
}

// WriteMetrics writes one snapshot of the collector to w.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) error {
	s := e.collector.Snapshot()
	p := &promWriter{w: bufio.NewWriter(w), ns: e.namespace, labels: s.Labels}

	p.family("peers_active", "Peers currently past the Init exchange", "gauge")
	p.sample("peers_active", nil, float64(s.PeersActive))
	for _, c := range promCounters {
		p.family(c.name, c.help, "counter")
		p.sample(c.name, nil, float64(c.value(s)))
	}

	p.family("key_rotations_total", "Cipher key rotations by direction", "counter")
	p.sample("key_rotations_total", Labels{"direction": "outbound"}, float64(s.KeyRotationsSent))
	p.sample("key_rotations_total", Labels{"direction": "inbound"}, float64(s.KeyRotationsRecv))

	p.family("uptime_seconds", "Seconds since the collector was created", "gauge")
	p.sample("uptime_seconds", nil, s.Uptime.Seconds())

	p.histogram("handshake_duration_milliseconds", "Handshake duration in milliseconds", s.HandshakeLatency)
	p.histogram("encrypt_duration_microseconds", "Encryption duration in microseconds", s.EncryptLatency)
	p.histogram("decrypt_duration_microseconds", "Decryption duration in microseconds", s.DecryptLatency)

	if p.err != nil {
		return p.err
	}
	return p.w.Flush()
}

// promWriter keeps the first write error and turns later writes into
// no-ops.
type promWriter struct {
	w      *bufio.Writer
	ns     string
	labels Labels
	err    error
}

func (p *promWriter) write(parts ...string) {
	for _, s := range parts {
		if p.err != nil {
			return
		}
		_, p.err = p.w.WriteString(s)
	}
}

func (p *promWriter) family(name, help, typ string) {
	full := p.ns + "_" + name
	p.write("# HELP ", full, " ", help, "\n", "# TYPE ", full, " ", typ, "\n")
}

// sample writes one line. extra labels follow the collector's own labels.
func (p *promWriter) sample(name string, extra Labels, v float64) {
	p.write(p.ns, "_", name, formatLabels(p.labels, extra), " ", formatValue(v), "\n")
}

func (p *promWriter) histogram(name, help string, h HistogramSummary) {
	p.family(name, help, "histogram")
	for _, b := range h.Buckets {
		p.sample(name+"_bucket", Labels{"le": formatValue(b.UpperBound)}, float64(b.Count))
	}
	p.sample(name+"_sum", nil, h.Sum)
	p.sample(name+"_count", nil, float64(h.Count))
}

// formatLabels renders base then extra as {k="v",...}, each group sorted
// by key. It returns "" when both are empty.
func formatLabels(base, extra Labels) string {
	if len(base) == 0 && len(extra) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for _, group := range []Labels{base, extra} {
		for _, k := range slices.Sorted(maps.Keys(group)) {
			if b.Len() > 1 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteString(`="`)
			b.WriteString(labelEscaper.Replace(group[k]))
			b.WriteByte('"')
		}
	}
	b.WriteByte('}')
	return b.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func formatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	case v == math.Trunc(v) && math.Abs(v) < 1<<53:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
