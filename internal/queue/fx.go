package queue

import (
	"context"

	"github.com/quadrel/pecbridge/internal/claim"
	"github.com/quadrel/pecbridge/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("queue",
	fx.Provide(
		provideQueue,
		provideWorker,
	),
	fx.Invoke(runWorker),
)

func provideQueue(rdb *redis.Client, cfg config.Config, log *zap.Logger) (*Queue, error) {
	return New(rdb, cfg.ClaimQueueKey, log)
}

func provideWorker(q *Queue, svc *claim.Service, cfg config.Config, log *zap.Logger) *Worker {
	return NewWorker(q, svc, cfg.ClaimWorkerIdle, cfg.ClaimMaxAttempts, log)
}

func runWorker(lc fx.Lifecycle, worker *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
