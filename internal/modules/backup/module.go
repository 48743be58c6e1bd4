package backup

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/backup"
	"signal_bot/internal/engine"
	"signal_bot/internal/modules/config"
	"signal_bot/pkg/db"
)

// Module собирает хранилища снимков: файл всегда, S3 и Postgres по конфигу.
func Module() fx.Option {
	return fx.Module("backup",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config, pg *db.PgTxManager, e *engine.Engine, log *zap.Logger) (*backup.Service, error) {
				sinks := []backup.Sink{backup.NewFileSink(cfg.Backup.Dir, cfg.Backup.Keep)}

				if cfg.Backup.S3.Bucket != "" {
					client, err := backup.NewS3Client(ctx, cfg.Backup.S3)
					if err != nil {
						return nil, err
					}
					sinks = append(sinks, backup.NewS3Sink(client, cfg.Backup.S3.Bucket, cfg.Backup.S3.Prefix))
				}

				if cfg.Backup.Postgres {
					if pg == nil {
						return nil, fmt.Errorf("backup.postgres is enabled but db_dsn is empty")
					}
					sink := backup.NewPostgresSink(pg, cfg.Backup.Keep)
					if err := sink.Migrate(ctx); err != nil {
						return nil, fmt.Errorf("migrate snapshots table: %w", err)
					}
					sinks = append(sinks, sink)
				}

				svc := backup.NewService(e, log, sinks...)
				log.Info("backup sinks", zap.Strings("sinks", svc.Sinks()))
				return svc, nil
			},
		),
	)
}
