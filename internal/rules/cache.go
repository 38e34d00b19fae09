package rules

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-pipeline/internal/pkg/logger"
)

const (
	routerCacheKey = "lead-pipeline:router:current"
	routerCacheTTL = 30 * time.Second
)

// CurrentLoader loads the current routing function.
type CurrentLoader interface {
	Current(ctx context.Context) (RouterVersion, error)
}

// CachedLoader fronts a CurrentLoader with a short-TTL Redis cache so router
// batches do not pay a store read per invocation. Redis failures degrade to
// the underlying loader; the cache is an optimization, never a correctness
// dependency.
type CachedLoader struct {
	inner CurrentLoader
	rdb   *redis.Client
}

// NewCachedLoader wraps loader with a Redis cache. A nil client disables
// caching entirely.
func NewCachedLoader(loader CurrentLoader, rdb *redis.Client) *CachedLoader {
	return &CachedLoader{inner: loader, rdb: rdb}
}

func (c *CachedLoader) Current(ctx context.Context) (RouterVersion, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, routerCacheKey).Bytes()
		if err == nil {
			var v RouterVersion
			if err := json.Unmarshal(raw, &v); err == nil && v.Tree != nil {
				return v, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.Warn("router cache read failed, falling back to store", "error", err.Error())
		}
	}

	v, err := c.inner.Current(ctx)
	if err != nil {
		return RouterVersion{}, err
	}
	if c.rdb != nil {
		if raw, err := json.Marshal(v); err == nil {
			if err := c.rdb.Set(ctx, routerCacheKey, raw, routerCacheTTL).Err(); err != nil {
				logger.Warn("router cache write failed", "error", err.Error())
			}
		}
	}
	return v, nil
}

// Invalidate drops the cached routing function. The compiler calls this after
// a publish so routers pick up the new version before the TTL lapses.
func (c *CachedLoader) Invalidate(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, routerCacheKey).Err(); err != nil {
		logger.Warn("router cache invalidate failed", "error", err.Error())
	}
}
