package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process-wide Prometheus metrics. Module metrics live next to
// their module.
type Metrics struct {
	BuildInfo  *prometheus.GaugeVec
	LedgerMode *prometheus.GaugeVec
}

// New creates and registers process-wide metrics.
func New() *Metrics {
	return &Metrics{
		BuildInfo: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vcregistry_build_info",
			Help: "Build and deployment information, always 1",
		}, []string{"version", "env", "chain_id"}),
		LedgerMode: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vcregistry_ledger_backend",
			Help: "Ledger backend in use, 1 for the active one",
		}, []string{"backend"}),
	}
}

func (m *Metrics) RecordBuildInfo(version, env, chainID string) {
	m.BuildInfo.WithLabelValues(version, env, chainID).Set(1)
}

func (m *Metrics) RecordLedgerBackend(backend string) {
	m.LedgerMode.WithLabelValues(backend).Set(1)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
