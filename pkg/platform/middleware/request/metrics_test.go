package request

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// unregisteredMetrics avoids promauto so tests don't collide on the default registry.
func unregisteredMetrics() *Metrics {
	return &Metrics{
		Latency:  prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "latency"}, []string{"route", "method"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "requests"}, []string{"route", "method", "status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{Name: "in_flight"}),
	}
}

func TestLatencyMiddlewareLabelsByRoute(t *testing.T) {
	m := unregisteredMetrics()
	h := LatencyMiddleware(m, func(*http.Request) string { return "/verifications/{uuid}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, float64(1), testutil.ToFloat64(m.InFlight))
			w.WriteHeader(http.StatusNotFound)
		}))

	serve(h, httptest.NewRequest(http.MethodGet, "/verifications/0xabc", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("/verifications/{uuid}", "GET", "4xx")))
	assert.Zero(t, testutil.ToFloat64(m.InFlight))
}

func TestLatencyMiddlewareUnmatchedRoute(t *testing.T) {
	m := unregisteredMetrics()
	h := LatencyMiddleware(m, func(*http.Request) string { return "" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve(h, httptest.NewRequest(http.MethodPost, "/nope", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("unmatched", "POST", "2xx")))
}

func TestLatencyMiddlewareNilMetricsPassesThrough(t *testing.T) {
	called := false
	h := LatencyMiddleware(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusCreated))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
	assert.Equal(t, "unknown", statusClass(0))
}
