package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks job throughput per queue.
type Metrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	pending   *prometheus.GaugeVec
	skipped   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Jobs finished by queue, type and status.",
		}, []string{"queue", "type", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gatehouse",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue", "type"}),
		pending: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gatehouse",
			Subsystem: "jobs",
			Name:      "pending",
			Help:      "Jobs waiting for a worker.",
		}, []string{"queue"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "jobs",
			Name:      "recurring_skipped_total",
			Help:      "Recurring ticks skipped because the previous run was still in flight.",
		}, []string{"recurring_id"}),
	}
}

func (m *Metrics) finished(j *Job, seconds float64) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(j.Queue, j.Type, string(j.Status)).Inc()
	m.duration.WithLabelValues(j.Queue, j.Type).Observe(seconds)
}

func (m *Metrics) setPending(q string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(q).Set(float64(n))
}

func (m *Metrics) skip(id string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(id).Inc()
}
