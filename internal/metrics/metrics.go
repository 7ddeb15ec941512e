// Package metrics exposes Prometheus counters and a histogram for block
// writes, cache hit/miss, and signature-trace depth.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors this module registers. Call
// MustRegister(reg) once per process. Every method is nil-receiver
// safe, so callers can pass a nil *Metrics to disable observation; the
// L1/L2/L3 core itself stays metrics-free and is observed only at the
// CLI boundary.
type Metrics struct {
	BlockWrites    *prometheus.CounterVec // labels: layer, result
	CacheLookups   *prometheus.CounterVec // labels: slot, result
	SignatureTrace prometheus.Histogram   // depth (levels walked)
}

// New constructs a fresh, unregistered Metrics bundle.
func New() *Metrics {
	return &Metrics{
		BlockWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blocktree",
			Name:      "block_writes_total",
			Help:      "Total block writes attempted, by layer and result.",
		}, []string{"layer", "result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blocktree",
			Name:      "cache_lookups_total",
			Help:      "Total cache lookups, by slot and hit/miss result.",
		}, []string{"slot", "result"}),
		SignatureTrace: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blocktree",
			Name:      "signature_trace_depth",
			Help:      "Number of chain levels walked to resolve an authorized key.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// MustRegister registers every collector in m against reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.BlockWrites, m.CacheLookups, m.SignatureTrace)
}

// ObserveWrite records a block write attempt's outcome.
func (m *Metrics) ObserveWrite(layer string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.BlockWrites.WithLabelValues(layer, result).Inc()
}

// ObserveCacheLookup records a cache hit or miss for slot.
func (m *Metrics) ObserveCacheLookup(slot string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(slot, result).Inc()
}

// ObserveSignatureTraceDepth records how many chain levels a signature
// trace visited before resolving (or failing to resolve) authorization.
func (m *Metrics) ObserveSignatureTraceDepth(depth int) {
	if m == nil {
		return
	}
	m.SignatureTrace.Observe(float64(depth))
}
