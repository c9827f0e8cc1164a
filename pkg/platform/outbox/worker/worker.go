package worker

import (
	"context"
	"log/slog"
	"time"

	"vcregistry/internal/platform/kafka/producer"
	"vcregistry/pkg/platform/circuit"
	"vcregistry/pkg/platform/outbox"
	"vcregistry/pkg/platform/outbox/metrics"
)

//go:generate mockgen -source=worker.go -destination=mocks/mocks.go -package=mocks Publisher

// Publisher delivers one message. *producer.Producer and *producer.NoopProducer satisfy it.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the outbox and publishes registry events to Kafka.
// Delivery is at-least-once: an entry published but not marked is re-sent
// on the next poll, and consumers dedupe on the event_id header.
type Worker struct {
	store        outbox.Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *metrics.Metrics
	breaker      *circuit.Breaker
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures the Worker.
type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) { w.topic = topic }
}

func WithBatchSize(size int) Option {
	return func(w *Worker) { w.batchSize = size }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithRetention sets how long processed entries are kept before cleanup.
// Zero disables cleanup.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) { w.retention = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithBreaker guards the publisher. While the breaker is open each poll
// publishes a single probe entry instead of a full batch.
func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) { w.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// New creates a new outbox worker.
func New(store outbox.Store, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topic:        "vcregistry.events",
		batchSize:    100,
		pollInterval: 100 * time.Millisecond,
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled, then drains what is left with a short deadline.
// It always returns nil so an errgroup shutdown is not reported as a failure.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var polls int
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case <-ticker.C:
			w.poll(ctx)
			polls++
			if polls%100 == 0 {
				w.housekeeping(ctx)
			}
		}
	}
}

// poll fetches and publishes one batch. It returns the number of entries published.
func (w *Worker) poll(ctx context.Context) int {
	start := time.Now()

	limit := w.batchSize
	if w.breaker != nil && w.breaker.IsOpen() {
		limit = 1
	}

	entries, err := w.store.FetchUnprocessed(ctx, limit)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to fetch outbox entries", "error", err)
		if w.metrics != nil {
			w.metrics.IncPublishFailures()
		}
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(entries))
	}

	published := 0
	for _, entry := range entries {
		if err := w.publishEntry(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.IncPublishFailures()
			}
			w.recordPublish(ctx, err)
			// Stop the batch so later events for the same aggregate are not published ahead of this one.
			break
		}

		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			w.logger.ErrorContext(ctx, "failed to mark entry as processed",
				"id", entry.ID,
				"error", err,
			)
			break
		}
		published++
		if w.metrics != nil {
			w.metrics.IncPublished()
		}
	}

	if w.metrics != nil {
		w.metrics.ObservePollDuration(time.Since(start).Seconds())
	}
	return published
}

func (w *Worker) publishEntry(ctx context.Context, entry *outbox.Entry) error {
	start := time.Now()

	err := w.publisher.Produce(ctx, &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: map[string]string{
			"event_id":       entry.ID.String(),
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	})
	if err != nil {
		return err
	}
	w.recordPublish(ctx, nil)

	if w.metrics != nil {
		w.metrics.ObservePublishDuration(time.Since(start).Seconds())
	}
	return nil
}

func (w *Worker) recordPublish(ctx context.Context, err error) {
	if w.breaker == nil {
		return
	}
	if err != nil {
		if w.breaker.Failure().Opened {
			w.logger.WarnContext(ctx, "publisher circuit opened, probing with single entries",
				"breaker", w.breaker.Name(),
			)
		}
		return
	}
	if w.breaker.Success().Closed {
		w.logger.InfoContext(ctx, "publisher circuit closed", "breaker", w.breaker.Name())
	}
}

// drain publishes remaining entries during shutdown.
func (w *Worker) drain() {
	w.logger.Info("draining outbox worker")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for ctx.Err() == nil {
		if w.poll(ctx) == 0 {
			return
		}
	}
}

func (w *Worker) housekeeping(ctx context.Context) {
	if err := w.UpdateMetrics(ctx); err != nil {
		w.logger.WarnContext(ctx, "failed to update outbox metrics", "error", err)
	}
	if w.retention <= 0 {
		return
	}
	deleted, err := w.store.DeleteProcessedBefore(ctx, w.now().Add(-w.retention))
	if err != nil {
		w.logger.WarnContext(ctx, "failed to clean processed outbox entries", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.DebugContext(ctx, "cleaned processed outbox entries", "deleted", deleted)
	}
}

// UpdateMetrics updates the pending depth gauge.
func (w *Worker) UpdateMetrics(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}
	count, err := w.store.CountPending(ctx)
	if err != nil {
		return err
	}
	w.metrics.SetPendingDepth(count)
	return nil
}
