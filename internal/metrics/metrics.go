// Package metrics exports service outcomes and store contention as
// Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"potluck/internal/domain"
)

// Compile-time contract assertion.
var _ domain.MetricsRecorder = (*Recorder)(nil)

// Recorder implements domain.MetricsRecorder on a private registry.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	retries    prometheus.Counter
}

// NewRecorder registers the potluck collectors plus the Go runtime and
// process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "potluck",
			Name:      "operations_total",
			Help:      "Core operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "potluck",
			Name:      "operation_duration_seconds",
			Help:      "Latency of core operations, including store conflict retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "potluck",
			Name:      "store_transaction_retries_total",
			Help:      "Transactions re-run after losing a write conflict.",
		}),
	}
	reg.MustRegister(
		r.operations,
		r.durations,
		r.retries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Outcome classifies err into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrProtectedIdentity):
		return "permission_denied"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrTransientStore):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

func (r *Recorder) Observe(_ context.Context, operation string, err error, duration time.Duration) {
	r.operations.WithLabelValues(operation, Outcome(err)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// TransactionRetried is wired into store.Options.OnRetry.
func (r *Recorder) TransactionRetried() {
	r.retries.Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
