package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter tracks per-message delivery attempts in redis so poison
// messages can be detected across consumer restarts. Keys are scoped by
// handler name and entity ID and expire after ttl of inactivity.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

func (r *RetryCounter) key(handler string, entityID int64) string {
	return fmt.Sprintf("retry:%s:%d", handler, entityID)
}

// Bump records one more delivery attempt and returns the running total.
func (r *RetryCounter) Bump(ctx context.Context, handler string, entityID int64) (int64, error) {
	key := r.key(handler, entityID)

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("bump retry counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Clear removes the counter once the message is handled or abandoned.
func (r *RetryCounter) Clear(ctx context.Context, handler string, entityID int64) error {
	return r.rdb.Del(ctx, r.key(handler, entityID)).Err()
}
