package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles Redis operations: rate limiting counters and
// fire-and-forget notification publishing.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs pipelines.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func rateLimitKey(key string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(window.Seconds()))
}

// CheckRateLimit reports whether the key is over its fixed-window limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(key, window)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return true, err // fail open
	}
	return count < limit, nil
}

// IncrementRateLimit increments the fixed-window counter for key.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	k := rateLimitKey(key, window)
	pipe := s.client.Pipeline()
	pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window*2)
	_, err := pipe.Exec(ctx)
	return err
}

// PublishEvent publishes a serialized notification event to a channel.
// Delivery is best-effort; callers never treat failure as fatal.
func (s *RedisStore) PublishEvent(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}
