// Package metrics exposes counters and histograms of knitfleet operations in prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/opst/knitfleet/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "knitfleet"

// values of "result" label.
const (
	ResultSuccess      = "success"
	ResultValidation   = "validation"
	ResultNotFound     = "not_found"
	ResultNotScheduled = "not_scheduled"
	ResultConflict     = "conflict"
	ResultBackend      = "backend"
	ResultError        = "error"
)

type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	dropped    prometheus.Counter
}

// New creates Metrics with its own registry.
//
// The registry also has go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Number of instance and entity operations, by operation and result.",
			},
			[]string{"operation", "result"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Time spent for instance and entity operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Number of audit records dropped.",
		}),
	}
	m.registry.MustRegister(
		m.operations, m.durations, m.dropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ResultOf classifies err into a value of "result" label.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, domain.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrNotScheduled):
		return ResultNotScheduled
	case errors.Is(err, domain.ErrConflict):
		return ResultConflict
	case errors.Is(err, domain.ErrBackend):
		return ResultBackend
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidLifecycle),
		errors.Is(err, domain.ErrUnschedulableEntity),
		errors.Is(err, domain.ErrInvalidFilter):
		return ResultValidation
	default:
		return ResultError
	}
}

// Observe counts an operation finished with err, started at since.
func (m *Metrics) Observe(operation string, since time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, ResultOf(err)).Inc()
	m.durations.WithLabelValues(operation).Observe(time.Since(since).Seconds())
}

// AuditDropped counts a dropped audit record.
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves metrics in the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
