package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Allowed     *prometheus.CounterVec
	Limited     *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Allowed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_ratelimit_allowed_total",
			Help: "Requests admitted by the rate limiter",
		}, []string{"class", "key_type"}),
		Limited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_ratelimit_limited_total",
			Help: "Requests rejected with 429 by the rate limiter",
		}, []string{"class", "key_type"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcregistry_ratelimit_store_errors_total",
			Help: "Bucket store failures; the request is let through",
		}),
	}
}

func (m *Metrics) IncrementAllowed(class, keyType string) {
	m.Allowed.WithLabelValues(class, keyType).Inc()
}

func (m *Metrics) IncrementLimited(class, keyType string) {
	m.Limited.WithLabelValues(class, keyType).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}
