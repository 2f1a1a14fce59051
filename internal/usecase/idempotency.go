package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const resultCacheTTL = 24 * time.Hour

// ResultCache remembers completed mutation results by idempotency key so a
// retried call returns the original outcome instead of applying the effect
// twice. Cache failures degrade to executing the mutation; they never block
// it.
type ResultCache interface {
	get(ctx context.Context, key string, out interface{}) bool
	put(ctx context.Context, key string, val interface{})
}

type redisResultCache struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewResultCache creates the redis-backed idempotency result cache. rdb may
// be nil, in which case every lookup misses.
func NewResultCache(rdb *redis.Client, log *zap.Logger) ResultCache {
	return &redisResultCache{rdb: rdb, log: log}
}

func (c *redisResultCache) get(ctx context.Context, key string, out interface{}) bool {
	if c.rdb == nil {
		return false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		c.log.Warn("discarding unreadable cached result", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *redisResultCache) put(ctx context.Context, key string, val interface{}) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, resultCacheTTL).Err(); err != nil {
		c.log.Warn("failed to cache mutation result", zap.String("key", key), zap.Error(err))
	}
}
