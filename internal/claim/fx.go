package claim

import (
	"github.com/quadrel/pecbridge/internal/observability/metrics"
	"github.com/quadrel/pecbridge/internal/selfcare"
	"github.com/quadrel/pecbridge/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("claim",
	fx.Provide(
		NewReconciler,
		provideService,
	),
)

func provideService(st store.Store, reconciler *Reconciler, client selfcare.Client, m *metrics.Metrics, log *zap.Logger) *Service {
	return NewService(st, reconciler, client, m, log)
}
