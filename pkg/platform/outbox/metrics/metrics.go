package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox worker.
type Metrics struct {
	PendingDepth    prometheus.Gauge
	PublishedTotal  prometheus.Counter
	PublishFailures prometheus.Counter
	PublishDuration prometheus.Histogram
	BatchSize       prometheus.Histogram
	PollDuration    prometheus.Histogram
}

// New creates a new Metrics instance with all outbox metrics registered.
func New() *Metrics {
	return &Metrics{
		PendingDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vcregistry_outbox_pending_total",
			Help: "Current number of unpublished registry events",
		}),
		PublishedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcregistry_outbox_published_total",
			Help: "Total number of registry events published to Kafka",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcregistry_outbox_publish_failures_total",
			Help: "Total number of outbox fetch or publish failures",
		}),
		PublishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcregistry_outbox_publish_duration_seconds",
			Help:    "Time taken to publish one registry event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcregistry_outbox_batch_size",
			Help:    "Number of entries processed per poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcregistry_outbox_poll_duration_seconds",
			Help:    "Time taken for each poll cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) SetPendingDepth(count int64) { m.PendingDepth.Set(float64(count)) }
func (m *Metrics) IncPublished()               { m.PublishedTotal.Inc() }
func (m *Metrics) IncPublishFailures()         { m.PublishFailures.Inc() }
func (m *Metrics) ObservePublishDuration(s float64) {
	m.PublishDuration.Observe(s)
}
func (m *Metrics) ObserveBatchSize(size int)     { m.BatchSize.Observe(float64(size)) }
func (m *Metrics) ObservePollDuration(s float64) { m.PollDuration.Observe(s) }
