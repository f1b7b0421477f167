package metrics

import (
	"encoding/json"
	"math"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"
)

// SummaryQuantiles are the quantiles reported by Histogram.Summary.
var SummaryQuantiles = []float64{0.5, 0.9, 0.95, 0.99}

// Histogram counts observations into fixed buckets. A bucket holds values
// up to and including its bound; one extra bucket holds everything above
// the last bound. It is safe for concurrent use.
type Histogram struct {
	mu     sync.RWMutex
	bounds []float64
	counts []uint64 // len(bounds)+1
	total  uint64
	sum    float64
	lo, hi float64 // valid when total > 0
}

// NewHistogram creates a histogram. bounds need not be sorted; duplicates
// are dropped.
func NewHistogram(bounds []float64) *Histogram {
	b := slices.Clone(bounds)
	slices.Sort(b)
	b = slices.Compact(b)
	return &Histogram{bounds: b, counts: make([]uint64, len(b)+1)}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[i]++
	if h.total == 0 || v < h.lo {
		h.lo = v
	}
	if h.total == 0 || v > h.hi {
		h.hi = v
	}
	h.total++
	h.sum += v
}

// ObserveDuration records d counted in units of unit, e.g. time.Millisecond.
func (h *Histogram) ObserveDuration(d, unit time.Duration) {
	h.Observe(float64(d) / float64(unit))
}

// BucketCount is a cumulative bucket: Count observations were <= UpperBound.
type BucketCount struct {
	UpperBound float64
	Count      uint64
}

// MarshalJSON writes the bound as a string, as Prometheus does, since JSON
// has no infinity.
func (b BucketCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		LE    string `json:"le"`
		Count uint64 `json:"count"`
	}{formatValue(b.UpperBound), b.Count})
}

// HistogramSummary is a point-in-time copy of a Histogram.
type HistogramSummary struct {
	Count       uint64             `json:"count"`
	Sum         float64            `json:"sum"`
	Min         float64            `json:"min"`
	Max         float64            `json:"max"`
	Mean        float64            `json:"mean"`
	Buckets     []BucketCount      `json:"buckets"`
	Percentiles map[string]float64 `json:"percentiles,omitempty"` // keyed by QuantileKey
}

// Summary copies the histogram. Buckets end with the +Inf bucket; an empty
// histogram has none.
func (h *Histogram) Summary() HistogramSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := HistogramSummary{
		Buckets:     []BucketCount{},
		Percentiles: make(map[string]float64, len(SummaryQuantiles)),
	}
	if h.total == 0 {
		return s
	}
	s.Count, s.Sum, s.Min, s.Max = h.total, h.sum, h.lo, h.hi
	s.Mean = h.sum / float64(h.total)

	var cum uint64
	for i, c := range h.counts {
		cum += c
		le := math.Inf(1)
		if i < len(h.bounds) {
			le = h.bounds[i]
		}
		s.Buckets = append(s.Buckets, BucketCount{UpperBound: le, Count: cum})
	}
	for _, q := range SummaryQuantiles {
		s.Percentiles[QuantileKey(q)] = h.quantile(q)
	}
	return s
}

// QuantileKey names q in HistogramSummary.Percentiles: 0.5 is "p50" and
// 0.999 is "p99.9".
func QuantileKey(q float64) string {
	return "p" + strconv.FormatFloat(math.Round(q*1e6)/1e4, 'f', -1, 64)
}

// Quantile estimates the q-quantile (0 <= q <= 1) by interpolating inside
// the bucket that holds it. It returns 0 for an empty histogram.
func (h *Histogram) Quantile(q float64) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.total == 0 {
		return 0
	}
	return h.quantile(q)
}

func (h *Histogram) quantile(q float64) float64 {
	q = min(max(q, 0), 1)
	rank := q * float64(h.total)

	var cum uint64
	for i, c := range h.counts {
		if c == 0 || float64(cum+c) < rank {
			cum += c
			continue
		}
		// The bucket spans (bounds[i-1], bounds[i]], narrowed to what was
		// actually observed.
		lower, upper := h.lo, h.hi
		if i > 0 && h.bounds[i-1] > lower {
			lower = h.bounds[i-1]
		}
		if i < len(h.bounds) && h.bounds[i] < upper {
			upper = h.bounds[i]
		}
		frac := (rank - float64(cum)) / float64(c)
		return lower + frac*(upper-lower)
	}
	return h.hi
}

// Reset drops every observation.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.counts)
	h.total, h.sum, h.lo, h.hi = 0, 0, 0, 0
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Mean returns the mean observation, or 0 when empty.
func (h *Histogram) Mean() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.total == 0 {
		return 0
	}
	return h.sum / float64(h.total)
}
