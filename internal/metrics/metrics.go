// Package metrics holds the Prometheus collectors of the sync layer.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "messenger"

// Metrics groups the counters updated by repositories, services and the
// gRPC layer.
type Metrics struct {
	Writes          *prometheus.CounterVec
	Conflicts       *prometheus.CounterVec
	SummaryFailures prometheus.Counter
	Events          *prometheus.CounterVec
	RPCs            *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Store writes by operation and result.",
		}, []string{"op", "result"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Optimistic concurrency conflicts that triggered a retry.",
		}, []string{"op"}),
		SummaryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_update_failures_total",
			Help:      "Conversation summaries left stale after a successful send.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events by type and result.",
		}, []string{"type", "result"}),
		RPCs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC calls by method and status code.",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(m.Writes, m.Conflicts, m.SummaryFailures, m.Events, m.RPCs)
	return m
}

// Write records a store write outcome.
func (m *Metrics) Write(op string, err error) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(op, result(err)).Inc()
}

// Conflict records a retried version conflict.
func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(op).Inc()
}

// SummaryFailed records a best-effort summary update that did not land.
func (m *Metrics) SummaryFailed() {
	if m == nil {
		return
	}
	m.SummaryFailures.Inc()
}

// Event records a domain event publish outcome.
func (m *Metrics) Event(typ string, err error) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(typ, result(err)).Inc()
}

// RPC records a finished gRPC call.
func (m *Metrics) RPC(method, code string) {
	if m == nil {
		return
	}
	m.RPCs.WithLabelValues(method, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
