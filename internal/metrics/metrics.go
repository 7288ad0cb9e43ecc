// Package metrics records scheduling engine activity for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chairside"

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeConflict   = "conflict"
	OutcomeInvalid    = "invalid"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
	OutcomeReplayed   = "replayed"
	OutcomeIdempotent = "idempotency_conflict"
)

// Collector is safe to use as a nil pointer; every method is then a
// no-op.
type Collector struct {
	operations       *prometheus.CounterVec
	operationSeconds *prometheus.HistogramVec
	conflicts        *prometheus.CounterVec
	slotsGenerated   *prometheus.CounterVec
	slotQuerySeconds prometheus.Histogram
	eventsPublished  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_operations_total",
				Help:      "Booking mutations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		operationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "booking_operation_duration_seconds",
				Help:      "Duration of booking mutations including lock wait.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"operation"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_conflicts_total",
				Help:      "Rejected mutations by conflicting resource kind.",
			},
			[]string{"resource"},
		),
		slotsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slots_generated_total",
				Help:      "Slots emitted by availability queries.",
			},
			[]string{"available"},
		),
		slotQuerySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "slot_query_duration_seconds",
				Help:      "Duration of single-resource slot generation.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Booking events handed to the publisher.",
			},
			[]string{"kind", "outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			c.operations,
			c.operationSeconds,
			c.conflicts,
			c.slotsGenerated,
			c.slotQuerySeconds,
			c.eventsPublished,
		)
	}
	return c
}

func (c *Collector) ObserveOperation(operation, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.operationSeconds.WithLabelValues(operation).Observe(took.Seconds())
}

func (c *Collector) ObserveConflict(resource string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(resource).Inc()
}

func (c *Collector) ObserveSlots(available, unavailable int, took time.Duration) {
	if c == nil {
		return
	}
	c.slotsGenerated.WithLabelValues("true").Add(float64(available))
	c.slotsGenerated.WithLabelValues("false").Add(float64(unavailable))
	c.slotQuerySeconds.Observe(took.Seconds())
}

func (c *Collector) ObserveEvent(kind string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.eventsPublished.WithLabelValues(kind, outcome).Inc()
}

// OperationCounter exposes one series for tests and diagnostics.
func (c *Collector) OperationCounter(operation, outcome string) prometheus.Counter {
	return c.operations.WithLabelValues(operation, outcome)
}
