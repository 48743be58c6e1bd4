package runner

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/backup"
	"signal_bot/internal/engine"
	"signal_bot/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config) Config {
				return Config{
					MonitorInterval: cfg.Scheduler.MonitorInterval,
					CleanupInterval: cfg.Scheduler.CleanupInterval,
					BackupInterval:  cfg.Scheduler.BackupInterval,
					Restore:         cfg.Backup.Restore,
				}
			},
			func(e *engine.Engine) Engine { return e },
			func(s *backup.Service) Backuper { return s },
			func(n engine.Notifier) Notifier { return n },
			fx.Private,
		),
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := r.Restore(ctx); err != nil {
						return err
					}
					r.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return r.Stop(ctx)
				},
			})
		}),
	)
}
