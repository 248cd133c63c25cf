// Package metrics holds the prometheus collectors shared by the scan,
// metadata and submission components. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "giftbox"

// Metrics is a set of collectors registered on one registerer.
type Metrics struct {
	scanReads       *prometheus.CounterVec
	scanBatches     prometheus.Counter
	scanDuration    prometheus.Histogram
	gatewayRequests *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	submissions     *prometheus.CounterVec
}

// New creates collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		scanReads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_reads_total",
			Help:      "Single record reads issued by ledger scans.",
		}, []string{"result"}),
		scanBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_batches_total",
			Help:      "Read batches completed by ledger scans.",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of full ledger scans.",
			Buckets:   prometheus.DefBuckets,
		}),
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Content store requests by gateway and result.",
		}, []string{"gateway", "result"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_lookups_total",
			Help:      "Per-view metadata cache lookups.",
		}, []string{"result"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Finished submissions by final state and error class.",
		}, []string{"kind", "state", "class"}),
	}
}

func (m *Metrics) ScanRead(ok bool) {
	if m == nil {
		return
	}
	m.scanReads.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ScanBatch() {
	if m == nil {
		return
	}
	m.scanBatches.Inc()
}

func (m *Metrics) ScanDone(seconds float64) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(seconds)
}

func (m *Metrics) GatewayRequest(gateway string, ok bool) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(gateway, result(ok)).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) Submission(kind, state, class string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, state, class).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
