package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the dispatch path. Registered once at startup against the
// process registry (or a private one in tests).
type Metrics struct {
	dispatches      *prometheus.CounterVec
	dispatchSeconds *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	auditEntries    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archon",
			Name:      "dispatches_total",
			Help:      "Dispatched tool requests by terminal status.",
		}, []string{"status"}),
		dispatchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "archon",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a full dispatch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archon",
			Name:      "tool_calls_total",
			Help:      "Individual tool invocations by outcome.",
		}, []string{"tool", "outcome"}),
		auditEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "archon",
			Name:      "audit_entries",
			Help:      "Entries currently held in the audit ring.",
		}),
	}
}

func (m *Metrics) observeDispatch(status string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(status).Inc()
	m.dispatchSeconds.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) observeCall(toolName, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName, outcome).Inc()
}

func (m *Metrics) setAuditEntries(n int) {
	if m == nil {
		return
	}
	m.auditEntries.Set(float64(n))
}
