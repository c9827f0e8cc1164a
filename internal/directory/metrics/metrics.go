package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for verifier directory operations.
type Metrics struct {
	VerifierMutations *prometheus.CounterVec
	ActiveVerifiers   prometheus.Gauge
	RejectedMutations *prometheus.CounterVec
}

// New registers and returns directory metrics collectors.
func New() *Metrics {
	return &Metrics{
		VerifierMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_verifier_mutations_total",
			Help: "Total number of successful verifier directory mutations, labeled by operation",
		}, []string{"operation"}),
		ActiveVerifiers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vcregistry_active_verifiers",
			Help: "Number of registered verifiers after the last committed mutation",
		}),
		RejectedMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_verifier_mutations_rejected_total",
			Help: "Total number of rejected verifier directory mutations, labeled by operation and error code",
		}, []string{"operation", "code"}),
	}
}

func (m *Metrics) IncrementMutation(operation string) {
	m.VerifierMutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementRejected(operation, code string) {
	m.RejectedMutations.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) SetActiveVerifiers(count uint64) {
	m.ActiveVerifiers.Set(float64(count))
}
