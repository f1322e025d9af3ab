package refdata

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKey = "pecbridge:refdata:feed"

// CachedFetcher fronts another fetcher with a TTL-bound redis cache of the
// raw feed text. Cache failures fall through to the inner fetcher.
type CachedFetcher struct {
	inner Fetcher
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedFetcher(inner Fetcher, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedFetcher {
	return &CachedFetcher{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.Named("refdata.cache"),
	}
}

func (c *CachedFetcher) FetchText(ctx context.Context) (string, error) {
	cached, err := c.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn("reference feed cache read failed", zap.Error(err))
	}

	raw, err := c.inner.FetchText(ctx)
	if err != nil {
		return "", err
	}

	if err := c.rdb.Set(ctx, cacheKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("reference feed cache write failed", zap.Error(err))
	}
	return raw, nil
}
