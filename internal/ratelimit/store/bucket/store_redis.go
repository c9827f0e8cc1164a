package bucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vcregistry/internal/ratelimit/models"
	"vcregistry/pkg/requestcontext"
)

const redisKeyPrefix = "vcregistry:ratelimit:"

// allowScript consumes cost units only when the bucket has room, so rejected
// requests do not extend a caller's penalty. The TTL is set on the first
// increment of each window.
//
// Returns {allowed, count, pttl_ms}.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local cost = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if current + cost > limit then
	return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCRBY', KEYS[1], cost)
if current == cost then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisBucketStore implements Store as a fixed window counter in Redis,
// shared by every registry replica.
type RedisBucketStore struct {
	client RedisClient
}

// RedisClient is the subset of go-redis the store needs. *redis.Client and
// *redis.ClusterClient both satisfy it.
type RedisClient interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisBucketStore creates a store on top of a go-redis client.
func NewRedisBucketStore(client RedisClient) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

func (s *RedisBucketStore) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)
	vals, err := allowScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, cost, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(vals))
	}

	allowed := vals[0] == 1
	count := int(vals[1])
	ttl := time.Duration(vals[2]) * time.Millisecond
	if ttl <= 0 {
		// -2 (missing) or -1 (no expiry) both mean a fresh window.
		ttl = window
	}
	resetAt := now.Add(ttl)

	remaining := max(limit-count, 0)
	if !allowed {
		remaining = 0
	}
	return &models.RateLimitResult{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfterSeconds(allowed, now, resetAt),
	}, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset bucket: %w", err)
	}
	return nil
}

func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, redisKeyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get bucket count: %w", err)
	}
	return n, nil
}
