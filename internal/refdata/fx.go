package refdata

import (
	"context"

	"github.com/quadrel/pecbridge/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("refdata",
	fx.Provide(
		provideFetcher,
		NewLoader,
	),
)

func provideFetcher(cfg config.Config, rdb *redis.Client, log *zap.Logger) (Fetcher, error) {
	var inner Fetcher
	if cfg.ReferenceFeedBucket != "" {
		gcs, err := NewGCSFetcher(context.Background(), cfg.ReferenceFeedBucket, cfg.ReferenceFeedObject)
		if err != nil {
			return nil, err
		}
		inner = gcs
	} else {
		inner = NewFileFetcher(cfg.ReferenceFeedPath)
	}
	return NewCachedFetcher(inner, rdb, cfg.ReferenceFeedTTL, log), nil
}
