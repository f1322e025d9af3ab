package ingestion

import (
	"github.com/quadrel/pecbridge/internal/observability/metrics"
	"github.com/quadrel/pecbridge/internal/refdata"
	"github.com/quadrel/pecbridge/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ingestion",
	fx.Provide(provideService),
)

func provideService(st store.Store, loader *refdata.Loader, m *metrics.Metrics, log *zap.Logger) *Service {
	return New(st, loader, m, log)
}
