// Package metrics exposes the actor's Prometheus collectors: kernel
// event throughput, RPC dispatch/retry counts, persistence flush
// latency, and the one HTTP surface (internal/restapi) that serves
// them, adapted from the teacher's infrastructure/metrics package to
// this actor's instrumentation points instead of HTTP/blockchain ones.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector one actor process registers.
type Metrics struct {
	KernelEventsTotal    *prometheus.CounterVec
	KernelEventDuration  *prometheus.HistogramVec
	KernelQueueDepth     prometheus.Gauge
	InvariantViolations  *prometheus.CounterVec

	RPCDispatchTotal *prometheus.CounterVec
	RPCRetryTotal    *prometheus.CounterVec
	RPCInFlight      prometheus.Gauge
	RPCFailedTotal   *prometheus.CounterVec

	PersistenceOpsTotal    *prometheus.CounterVec
	PersistenceOpsDuration *prometheus.HistogramVec

	ActorInfo *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default
// registry, as the teacher's package-level New does.
func New(actorID string) *Metrics {
	return NewWithRegistry(actorID, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance against a custom registry,
// used by tests to avoid colliding with the process-wide default one.
func NewWithRegistry(actorID string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		KernelEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_events_total",
				Help: "Total kernel events processed, by event type and outcome.",
			},
			[]string{"actor", "event", "outcome"},
		),
		KernelEventDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_event_duration_seconds",
				Help:    "Time spent handling one kernel event.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"actor", "event"},
		),
		KernelQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_queue_depth",
				Help: "Number of events currently queued for the kernel loop.",
			},
		),
		InvariantViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_invariant_violations_total",
				Help: "Fatal invariant violations recovered at the kernel dispatch boundary before abort.",
			},
			[]string{"actor", "entity"},
		),
		RPCDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_dispatch_total",
				Help: "Outbound RPCs dispatched, by peer and pending state.",
			},
			[]string{"actor", "peer", "pending"},
		),
		RPCRetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_retry_total",
				Help: "Outbound RPC retry attempts, by peer.",
			},
			[]string{"actor", "peer"},
		),
		RPCInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rpc_in_flight",
				Help: "Outbound RPCs currently awaiting a response or timeout.",
			},
		),
		RPCFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_failed_total",
				Help: "Outbound RPCs that ended in a Failed-RPC, by permanence.",
			},
			[]string{"actor", "permanent"},
		),
		PersistenceOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "persistence_operations_total",
				Help: "Persistence gateway operations, by entity kind and outcome.",
			},
			[]string{"actor", "entity", "outcome"},
		),
		PersistenceOpsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "persistence_operation_duration_seconds",
				Help:    "Persistence gateway operation latency.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"actor", "entity"},
		),
		ActorInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "actor_info",
				Help: "Static actor identity, value always 1.",
			},
			[]string{"actor_id"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.KernelEventsTotal,
			m.KernelEventDuration,
			m.KernelQueueDepth,
			m.InvariantViolations,
			m.RPCDispatchTotal,
			m.RPCRetryTotal,
			m.RPCInFlight,
			m.RPCFailedTotal,
			m.PersistenceOpsTotal,
			m.PersistenceOpsDuration,
			m.ActorInfo,
		)
	}

	m.ActorInfo.WithLabelValues(actorID).Set(1)
	return m
}

// ObserveKernelEvent records one handled kernel event's outcome and
// duration.
func (m *Metrics) ObserveKernelEvent(actor, event, outcome string, d time.Duration) {
	m.KernelEventsTotal.WithLabelValues(actor, event, outcome).Inc()
	m.KernelEventDuration.WithLabelValues(actor, event).Observe(d.Seconds())
}

// ObservePersistenceOp records one gateway call's outcome and latency.
func (m *Metrics) ObservePersistenceOp(actor, entity, outcome string, d time.Duration) {
	m.PersistenceOpsTotal.WithLabelValues(actor, entity, outcome).Inc()
	m.PersistenceOpsDuration.WithLabelValues(actor, entity).Observe(d.Seconds())
}

// ObserveDispatch records one outbound RPC dispatch attempt.
func (m *Metrics) ObserveDispatch(actor, peer, pending string) {
	m.RPCDispatchTotal.WithLabelValues(actor, peer, pending).Inc()
}

// ObserveRetry records one outbound RPC retry attempt.
func (m *Metrics) ObserveRetry(actor, peer string) {
	m.RPCRetryTotal.WithLabelValues(actor, peer).Inc()
}

// ObserveFailed records one Failed-RPC outcome.
func (m *Metrics) ObserveFailed(actor string, permanent bool) {
	m.RPCFailedTotal.WithLabelValues(actor, strconv.FormatBool(permanent)).Inc()
}

// IncInFlight marks one more outbound RPC as awaiting a response.
func (m *Metrics) IncInFlight() { m.RPCInFlight.Inc() }

// DecInFlight marks one outbound RPC as resolved, whether by response,
// Failed-RPC, or timeout.
func (m *Metrics) DecInFlight() { m.RPCInFlight.Dec() }
