package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lockWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vcregistry_ledger_lock_wait_seconds",
		Help:    "Time spent waiting for the global ledger write lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"backend"})
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vcregistry_ledger_updates_total",
		Help: "Ledger update transactions by outcome",
	}, []string{"backend", "outcome"})
)

// ObserveLockWait records how long an update waited for the write lock.
func ObserveLockWait(backend string, d time.Duration) {
	lockWaitDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveUpdate records whether an update committed or rolled back.
func ObserveUpdate(backend string, err error) {
	outcome := "committed"
	if err != nil {
		outcome = "rolled_back"
	}
	updatesTotal.WithLabelValues(backend, outcome).Inc()
}
