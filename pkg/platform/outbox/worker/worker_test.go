package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vcregistry/internal/platform/kafka/producer"
	"vcregistry/pkg/platform/circuit"
	"vcregistry/pkg/platform/outbox"
	outboxmocks "vcregistry/pkg/platform/outbox/mocks"
	"vcregistry/pkg/platform/outbox/store/memory"
	"vcregistry/pkg/platform/outbox/worker/mocks"
)

// WorkerSuite covers the publish loop. Ordering matters: events for one
// verifier must reach Kafka in commit order, so a failed publish halts the batch.
type WorkerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *outboxmocks.MockStore
	publisher *mocks.MockPublisher
	worker    *Worker
	fixedNow  time.Time
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = outboxmocks.NewMockStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.worker = New(s.store, s.publisher, WithTopic("registry.test"), WithBatchSize(10))
	s.worker.now = func() time.Time { return s.fixedNow }
}

func (s *WorkerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *WorkerSuite) entry(aggregateID, eventType string) *outbox.Entry {
	return outbox.NewEntry(outbox.AggregateVerifier, aggregateID, eventType, []byte(`{"k":"v"}`), s.fixedNow)
}

func (s *WorkerSuite) TestPollPublishesAndMarksInOrder() {
	ctx := context.Background()
	first := s.entry("0xabc", "verifier_added")
	second := s.entry("0xabc", "verifier_updated")

	s.store.EXPECT().FetchUnprocessed(ctx, 10).Return([]*outbox.Entry{first, second}, nil)
	gomock.InOrder(
		s.publisher.EXPECT().Produce(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, msg *producer.Message) error {
			s.Equal("registry.test", msg.Topic)
			s.Equal([]byte("0xabc"), msg.Key)
			s.Equal(first.ID.String(), msg.Headers["event_id"])
			s.Equal("verifier_added", msg.Headers["event_type"])
			return nil
		}),
		s.store.EXPECT().MarkProcessed(ctx, first.ID, s.fixedNow).Return(nil),
		s.publisher.EXPECT().Produce(ctx, gomock.Any()).Return(nil),
		s.store.EXPECT().MarkProcessed(ctx, second.ID, s.fixedNow).Return(nil),
	)

	s.Equal(2, s.worker.poll(ctx))
}

func (s *WorkerSuite) TestPublishFailureHaltsBatch() {
	ctx := context.Background()
	first := s.entry("0xabc", "verifier_added")
	second := s.entry("0xabc", "verifier_removed")

	s.store.EXPECT().FetchUnprocessed(ctx, 10).Return([]*outbox.Entry{first, second}, nil)
	s.publisher.EXPECT().Produce(ctx, gomock.Any()).Return(errors.New("broker unavailable"))

	s.Equal(0, s.worker.poll(ctx))
}

func (s *WorkerSuite) TestMarkFailureHaltsBatch() {
	ctx := context.Background()
	first := s.entry("0xabc", "verifier_added")
	second := s.entry("0xdef", "verifier_added")

	s.store.EXPECT().FetchUnprocessed(ctx, 10).Return([]*outbox.Entry{first, second}, nil)
	s.publisher.EXPECT().Produce(ctx, gomock.Any()).Return(nil)
	s.store.EXPECT().MarkProcessed(ctx, first.ID, s.fixedNow).Return(errors.New("conn reset"))

	s.Equal(0, s.worker.poll(ctx))
}

func (s *WorkerSuite) TestFetchFailurePublishesNothing() {
	ctx := context.Background()
	s.store.EXPECT().FetchUnprocessed(ctx, 10).Return(nil, errors.New("ledger down"))

	s.Equal(0, s.worker.poll(ctx))
}

func (s *WorkerSuite) TestOpenBreakerShrinksBatchToProbe() {
	ctx := context.Background()
	breaker := circuit.New("kafka", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1))
	w := New(s.store, s.publisher, WithBatchSize(10), WithBreaker(breaker))
	w.now = func() time.Time { return s.fixedNow }
	first := s.entry("0xabc", "verifier_added")

	s.store.EXPECT().FetchUnprocessed(ctx, 10).Return([]*outbox.Entry{first}, nil)
	s.publisher.EXPECT().Produce(ctx, gomock.Any()).Return(errors.New("broker unavailable"))
	s.Equal(0, w.poll(ctx))
	s.True(breaker.IsOpen())

	s.store.EXPECT().FetchUnprocessed(ctx, 1).Return([]*outbox.Entry{first}, nil)
	s.publisher.EXPECT().Produce(ctx, gomock.Any()).Return(nil)
	s.store.EXPECT().MarkProcessed(ctx, first.ID, s.fixedNow).Return(nil)
	s.Equal(1, w.poll(ctx))
	s.False(breaker.IsOpen())
}

func (s *WorkerSuite) TestRunDrainsOnShutdown() {
	store := memory.New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Require().NoError(store.Append(ctx, s.entry("0xabc", "verification_registered")))
	}
	s.publisher.EXPECT().Produce(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	w := New(store, s.publisher, WithBatchSize(2), WithPollInterval(time.Hour))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	s.Require().NoError(w.Run(cancelled))

	pending, err := store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}
