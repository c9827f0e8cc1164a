package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for attestation operations.
type Metrics struct {
	Registered          prometheus.Counter
	Revoked             prometheus.Counter
	Removed             prometheus.Counter
	Rejected            *prometheus.CounterVec
	VerificationsTotal  prometheus.Gauge
	VerifiedChecks      *prometheus.CounterVec
	SignatureRecoveries *prometheus.CounterVec
	SubjectIndexSize    prometheus.Histogram
}

// New registers and returns attestation metrics collectors.
func New() *Metrics {
	return &Metrics{
		Registered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcregistry_verifications_registered_total",
			Help: "Total number of verifications registered",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcregistry_verifications_revoked_total",
			Help: "Total number of revoke calls that succeeded, including repeats",
		}),
		Removed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcregistry_verifications_removed_total",
			Help: "Total number of verifications removed",
		}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_verification_mutations_rejected_total",
			Help: "Total number of rejected registry mutations, labeled by operation and error code",
		}, []string{"operation", "code"}),
		VerificationsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vcregistry_verification_count",
			Help: "Value of the global verification counter after the last registration",
		}),
		VerifiedChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_is_verified_checks_total",
			Help: "Total number of subject verification checks, labeled by result",
		}, []string{"result"}),
		SignatureRecoveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_signature_recoveries_total",
			Help: "Signature recovery attempts, labeled by outcome",
		}, []string{"outcome"}),
		SubjectIndexSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcregistry_subject_index_size",
			Help:    "Number of uuids scanned per subject lookup",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
	}
}

func (m *Metrics) IncrementRejected(operation, code string) {
	m.Rejected.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ObserveVerifiedCheck(verified bool) {
	result := "unverified"
	if verified {
		result = "verified"
	}
	m.VerifiedChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSignatureRecovery(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "recovered"
	}
	m.SignatureRecoveries.WithLabelValues(outcome).Inc()
}
