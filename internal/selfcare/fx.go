package selfcare

import (
	"github.com/quadrel/pecbridge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("selfcare",
	fx.Provide(provideClient),
)

func provideClient(cfg config.Config, log *zap.Logger) Client {
	return NewHTTPClient(cfg.SelfcareBaseURL, cfg.SelfcareAPIKey, cfg.SelfcareTimeout, log)
}
