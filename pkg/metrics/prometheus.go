package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker states exported by the state gauge.
var workerStates = []string{"idle", "reserving", "executing", "reporting", "stopping", "stopped"}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	reserved      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	state         *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		reserved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qless_jobs_reserved_total",
				Help: "Total number of jobs reserved by workers",
			},
			[]string{"queue"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qless_jobs_finished_total",
				Help: "Total number of jobs finished, by outcome",
			},
			[]string{"queue", "outcome"},
		),
		backendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qless_backend_errors_total",
				Help: "Total number of backend operation errors",
			},
			[]string{"op"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qless_job_duration_seconds",
				Help:    "Time spent performing jobs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qless_worker_state",
				Help: "1 for the state each worker is currently in",
			},
			[]string{"worker", "state"},
		),
	}
}

// RecordReserved counts a reserved job.
func (r *Recorder) RecordReserved(queue string) {
	r.reserved.WithLabelValues(queue).Inc()
}

// RecordOutcome counts a finished job ("complete" or "failed").
func (r *Recorder) RecordOutcome(queue, outcome string) {
	r.outcomes.WithLabelValues(queue, outcome).Inc()
}

// RecordBackendError counts a failed backend operation.
func (r *Recorder) RecordBackendError(op string) {
	r.backendErrors.WithLabelValues(op).Inc()
}

// RecordJobDuration records how long a job ran, in seconds.
func (r *Recorder) RecordJobDuration(queue string, seconds float64) {
	r.duration.WithLabelValues(queue).Observe(seconds)
}

// SetWorkerState marks state as current for worker.
func (r *Recorder) SetWorkerState(worker, state string) {
	for _, s := range workerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.state.WithLabelValues(worker, s).Set(v)
	}
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) RecordReserved(string) {}
func (Nop) RecordOutcome(string, string) {}
func (Nop) RecordBackendError(string) {}
func (Nop) RecordJobDuration(string, float64) {}
func (Nop) SetWorkerState(string, string) {}
