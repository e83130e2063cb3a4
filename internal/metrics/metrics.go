// Package metrics exposes lifecycle and storage counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logbook"

// Recorder owns its registry so tests can build as many as they like. A
// nil *Recorder records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	storageOps  *prometheus.CounterVec
	orphans     *prometheus.CounterVec
	reports     prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_transitions_total",
			Help:      "Event lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		storageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Object storage calls by bucket, operation and outcome.",
		}, []string{"bucket", "operation", "outcome"}),
		orphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_orphaned_objects_total",
			Help:      "Objects left behind after their rows were deleted.",
		}, []string{"bucket"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Reports aggregated.",
		}),
	}

	r.registry.MustRegister(
		r.transitions,
		r.storageOps,
		r.orphans,
		r.reports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Transition counts a lifecycle operation such as create, start, end or delete.
func (r *Recorder) Transition(operation string, err error) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(operation, outcome(err)).Inc()
}

func (r *Recorder) StorageOp(bucket, operation string, n int, err error) {
	if r == nil || n <= 0 {
		return
	}
	r.storageOps.WithLabelValues(bucket, operation, outcome(err)).Add(float64(n))
}

func (r *Recorder) Orphaned(bucket string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.orphans.WithLabelValues(bucket).Add(float64(n))
}

func (r *Recorder) ReportGenerated() {
	if r == nil {
		return
	}
	r.reports.Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
