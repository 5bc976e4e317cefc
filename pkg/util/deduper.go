package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{
		rdb: rdb,
		ttl: ttl,
	}
}

// NewDeduperWithLogger creates a deduper that logs skipped duplicates.
func NewDeduperWithLogger(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	d := NewDeduper(rdb, ttl)
	d.logger = logger
	return d
}

// AcquireOnce tries to acquire a dedup lock for a given handler + entity ID.
// Returns true if this is the first time processing, false on a duplicate.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, entityID int64) bool {
	key := fmt.Sprintf("dedup:%s:%d", handler, entityID)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis outage must not block processing.
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.Int64("entity_id", entityID),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.Int64("entity_id", entityID),
			zap.String("dedup_key", key),
		)
	}

	return ok
}
