package telemetry

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/metrics"
	"signal_bot/internal/modules/config"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"
)

const serviceName = "signal_bot"

// Module — логгер, трейсер и метрики процесса.
func Module() fx.Option {
	return fx.Module("telemetry",
		fx.Provide(
			func(cfg *config.Config) (*zap.Logger, error) {
				logger.SetServiceName(serviceName)
				return logger.New(cfg.Log)
			},
			metrics.New,
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
			tracing.SetServiceName(serviceName)
			_, closer, err := tracing.InitTracer(cfg.Tracing)
			if err != nil {
				return err
			}
			lc.Append(fx.StopHook(func() {
				closer()
				_ = log.Sync()
			}))
			return nil
		}),
	)
}
