package observability

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType identifies the kind of metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// MetricEntry represents a single metric value.
type MetricEntry struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Help      string            `json:"help"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// -----------------------------------------------------------------------
// Counter
// -----------------------------------------------------------------------

// Counter is a monotonically increasing counter. The value lives in an
// atomic word holding the float64 bit pattern, updated with a CAS loop,
// so hot paths (every decoded swap, every submission) never take a lock.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	bits   atomic.Uint64 // float64 bit pattern
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add increments the counter by delta. Negative deltas are ignored;
// counters only go up.
func (c *Counter) Add(delta float64) {
	if delta < 0 {
		return
	}
	for {
		old := c.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if c.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Value returns the current counter value.
func (c *Counter) Value() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Entry returns a MetricEntry snapshot.
func (c *Counter) Entry() MetricEntry {
	return MetricEntry{
		Name:      c.name,
		Type:      MetricCounter,
		Help:      c.help,
		Value:     c.Value(),
		Labels:    copyLabels(c.labels),
		Timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------
// Gauge
// -----------------------------------------------------------------------

// Gauge can go up and down. Same lock-free representation as Counter.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	bits   atomic.Uint64 // float64 bit pattern
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.Add(-1) }

// Add adds delta to the gauge (may be negative).
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Entry returns a MetricEntry snapshot.
func (g *Gauge) Entry() MetricEntry {
	return MetricEntry{
		Name:      g.name,
		Type:      MetricGauge,
		Help:      g.help,
		Value:     g.Value(),
		Labels:    copyLabels(g.labels),
		Timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------
// Histogram
// -----------------------------------------------------------------------

// Histogram tracks value distributions. Bounds are upper-bound
// inclusive; each observation lands in exactly one bucket, and the
// cumulative counts Prometheus wants are derived on read.
type Histogram struct {
	name   string
	help   string
	labels map[string]string

	mu     sync.Mutex
	bounds []float64 // sorted upper bounds
	hits   []int64   // per-bucket observation counts
	sum    float64
	count  int64
}

// Observe records a value into the histogram. Values above the last
// bound only count toward the implicit +Inf bucket.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.hits) {
		h.hits[i]++
	}
}

// Count returns the total number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Quantile returns an approximate percentile (0..1), interpolating
// linearly within the bucket the target rank falls into.
func (h *Histogram) Quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 || q < 0 || q > 1 {
		return 0
	}
	target := q * float64(h.count)

	var lower, cum float64
	for i, bound := range h.bounds {
		prev := cum
		cum += float64(h.hits[i])
		if cum >= target {
			if h.hits[i] == 0 {
				return bound
			}
			fraction := (target - prev) / float64(h.hits[i])
			return lower + fraction*(bound-lower)
		}
		lower = bound
	}

	// Beyond the last bound; the best answer the buckets can give.
	if len(h.bounds) > 0 {
		return h.bounds[len(h.bounds)-1]
	}
	return 0
}

// Entry returns a MetricEntry snapshot (value = count).
func (h *Histogram) Entry() MetricEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return MetricEntry{
		Name:      h.name,
		Type:      MetricHistogram,
		Help:      h.help,
		Value:     float64(h.count),
		Labels:    copyLabels(h.labels),
		Timestamp: time.Now(),
	}
}

// BucketCounts returns a snapshot of (upper-bound, cumulative-count)
// pairs in the shape the Prometheus exporter emits.
func (h *Histogram) BucketCounts() (bounds []float64, cumulative []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bounds = make([]float64, len(h.bounds))
	copy(bounds, h.bounds)
	cumulative = make([]int64, len(h.hits))
	var running int64
	for i, n := range h.hits {
		running += n
		cumulative[i] = running
	}
	return bounds, cumulative, h.sum, h.count
}

// -----------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------

// Registry manages all metrics. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// NewCounter registers and returns a new counter metric.
// If a counter with the same name already exists, the existing one is returned.
func (r *Registry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	c := &Counter{
		name:   name,
		help:   help,
		labels: copyLabels(labels),
	}
	r.counters[name] = c
	return c
}

// NewGauge registers and returns a new gauge metric.
// If a gauge with the same name already exists, the existing one is returned.
func (r *Registry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gauges[name]; ok {
		return existing
	}
	g := &Gauge{
		name:   name,
		help:   help,
		labels: copyLabels(labels),
	}
	r.gauges[name] = g
	return g
}

// NewHistogram registers and returns a new histogram metric.
// If a histogram with the same name already exists, the existing one is returned.
func (r *Registry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	h := &Histogram{
		name:   name,
		help:   help,
		labels: copyLabels(labels),
		bounds: sorted,
		hits:   make([]int64, len(sorted)),
	}
	r.histograms[name] = h
	return h
}

// GetCounter returns a registered counter or nil.
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge returns a registered gauge or nil.
func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// GetHistogram returns a registered histogram or nil.
func (r *Registry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// AllMetrics returns a snapshot of all registered metric entries.
func (r *Registry) AllMetrics() []MetricEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]MetricEntry, 0, len(r.counters)+len(r.gauges)+len(r.histograms))

	// Collect counters in sorted order for deterministic output.
	counterNames := sortedKeys(r.counters)
	for _, name := range counterNames {
		entries = append(entries, r.counters[name].Entry())
	}

	gaugeNames := sortedKeys(r.gauges)
	for _, name := range gaugeNames {
		entries = append(entries, r.gauges[name].Entry())
	}

	histNames := sortedKeys(r.histograms)
	for _, name := range histNames {
		entries = append(entries, r.histograms[name].Entry())
	}

	return entries
}

// -----------------------------------------------------------------------
// Default Buckets
// -----------------------------------------------------------------------

// DefaultLatencyBuckets for latency histograms (in milliseconds).
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// -----------------------------------------------------------------------
// HornetMetrics creates a pre-configured registry with the standard
// trading-core metrics.
// -----------------------------------------------------------------------

func HornetMetrics() *Registry {
	r := NewRegistry()

	// --- Counters ---
	r.NewCounter("hornet_trades_attempted_total",
		"Total trades attempted",
		map[string]string{"side": ""})

	r.NewCounter("hornet_trades_successful_total",
		"Total trades confirmed on chain",
		map[string]string{"side": ""})

	r.NewCounter("hornet_trades_failed_total",
		"Total trades failed after retries",
		map[string]string{"kind": ""})

	r.NewCounter("hornet_sandwich_attempts_total",
		"Total sandwich attempts",
		nil)

	r.NewCounter("hornet_sandwich_wins_total",
		"Total sandwiches where both legs landed profitably",
		nil)

	r.NewCounter("hornet_gas_bump_retries_total",
		"Total gas-price escalations during submission retries",
		nil)

	r.NewCounter("hornet_rpc_errors_total",
		"Total RPC errors by kind",
		map[string]string{"kind": ""})

	r.NewCounter("hornet_safety_refusals_total",
		"Total buys refused on a red safety level",
		nil)

	// --- Gauges ---
	r.NewGauge("hornet_active_trades",
		"Open positions held",
		nil)

	r.NewGauge("hornet_tracked_tokens",
		"Tokens in the status tracker",
		nil)

	r.NewGauge("hornet_mempool_pending_swaps",
		"Pending router swaps in the observation window",
		nil)

	r.NewGauge("hornet_gas_price_gwei",
		"Latest observed gas price",
		nil)

	// --- Histograms ---
	r.NewHistogram("hornet_submission_latency_ms",
		"Transaction submission-to-receipt latency in milliseconds",
		nil,
		DefaultLatencyBuckets)

	r.NewHistogram("hornet_trade_gas_used",
		"Gas used per confirmed trade",
		nil,
		[]float64{50_000, 100_000, 150_000, 200_000, 300_000, 500_000, 1_000_000})

	r.NewHistogram("hornet_trade_amount_native",
		"Trade size in native units",
		nil,
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})

	return r
}

// -----------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------

func copyLabels(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// sortedKeys is a generic helper that returns sorted keys for any map[string]V.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
