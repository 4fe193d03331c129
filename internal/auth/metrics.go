package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authentication outcomes per scheme.
type Metrics struct {
	attempts *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil reg yields unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by scheme and outcome.",
		}, []string{"scheme", "outcome"}),
	}
}

func (m *Metrics) observe(scheme, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(scheme, outcome).Inc()
}
