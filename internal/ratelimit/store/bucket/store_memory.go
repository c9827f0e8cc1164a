package bucket

import (
	"context"
	"sync"
	"time"

	"vcregistry/internal/ratelimit/models"
	"vcregistry/pkg/requestcontext"
)

// sweepEvery is how many Allow calls pass between scans for idle buckets.
const sweepEvery = 1024

// InMemoryBucketStore is a sliding-window Store for single-process deployments
// without Redis. Each bucket keeps the admitted hits still inside its window.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*window
	calls   int
}

type hit struct {
	at   time.Time
	cost int
}

type window struct {
	size time.Duration
	hits []hit // oldest first
	used int
}

// expire drops hits that are no longer inside the window ending at now.
func (w *window) expire(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.hits) && !w.hits[i].at.After(cutoff) {
		w.used -= w.hits[i].cost
		i++
	}
	w.hits = w.hits[i:]
}

func (w *window) resetAt(now time.Time) time.Time {
	if len(w.hits) == 0 {
		return now.Add(w.size)
	}
	return w.hits[0].at.Add(w.size)
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{buckets: make(map[string]*window)}
}

func (s *InMemoryBucketStore) Allow(ctx context.Context, key string, limit int, size time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, size)
}

// AllowN admits cost units if they fit. A denied request consumes nothing.
// Time comes from the request context.
func (s *InMemoryBucketStore) AllowN(ctx context.Context, key string, cost, limit int, size time.Duration) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls%sweepEvery == 0 {
		s.sweep(now)
	}

	w, ok := s.buckets[key]
	if !ok {
		w = &window{size: size}
		s.buckets[key] = w
	}
	w.expire(now)

	allowed := w.used+cost <= limit
	if allowed {
		w.hits = append(w.hits, hit{at: now, cost: cost})
		w.used += cost
	}
	remaining := max(limit-w.used, 0)
	if !allowed {
		remaining = 0
	}
	resetAt := w.resetAt(now)

	return &models.RateLimitResult{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfterSeconds(allowed, now, resetAt),
	}, nil
}

// sweep forgets buckets with nothing left in their window. Caller holds mu.
func (s *InMemoryBucketStore) sweep(now time.Time) {
	for key, w := range s.buckets {
		w.expire(now)
		if len(w.hits) == 0 {
			delete(s.buckets, key)
		}
	}
}

func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

func (s *InMemoryBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.buckets[key]
	if !ok {
		return 0, nil
	}
	w.expire(requestcontext.Now(ctx))
	return w.used, nil
}
