package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hearth/internal/ratelimit/models"
	"hearth/internal/sentinel"
)

const redisKeyPrefix = "hearth:ratelimit:"

// RedisStore keeps counters in Redis so all gateway instances share one view.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed counter store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key models.CounterKey) (int, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key.String()).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get rate limit counter: %w (%w)", err, sentinel.ErrUnavailable)
	}
	return val, nil
}

// Increment relies on INCR being atomic server-side. The expiry is set only
// when the counter is created so the window's retention is stable.
func (s *RedisStore) Increment(ctx context.Context, key models.CounterKey, window time.Duration) (int, error) {
	k := redisKeyPrefix + key.String()

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// NX: only stamp a TTL on first write; counters outlive their window by
	// one extra window so a just-closed window can still be read.
	pipe.ExpireNX(ctx, k, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w (%w)", err, sentinel.ErrUnavailable)
	}

	return int(incr.Val()), nil
}
