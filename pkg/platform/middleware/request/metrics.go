package request

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are labelled by chi route pattern, never by raw path.
type Metrics struct {
	Latency  *prometheus.HistogramVec
	Requests *prometheus.CounterVec
	InFlight prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vcregistry_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "method"}),
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcregistry_http_requests_total",
			Help: "HTTP requests by route, method and status class",
		}, []string{"route", "method", "status"}),
		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vcregistry_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
}

func (m *Metrics) observe(route, method string, status int, seconds float64) {
	m.Latency.WithLabelValues(route, method).Observe(seconds)
	m.Requests.WithLabelValues(route, method, statusClass(status)).Inc()
}

// statusClass folds a status code to "2xx", "4xx" and so on.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
