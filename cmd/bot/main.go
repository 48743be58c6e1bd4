package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"signal_bot/internal/modules/backup"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/exchange"
	"signal_bot/internal/modules/notify"
	"signal_bot/internal/modules/postgres"
	"signal_bot/internal/modules/server"
	"signal_bot/internal/modules/telemetry"
	"signal_bot/internal/modules/trading"
	"signal_bot/internal/runner"
)

func main() {
	fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		telemetry.Module(),
		postgres.Module(),
		server.Module(),
		exchange.Module(),
		notify.Module(),
		trading.Module(),
		backup.Module(),
		runner.Module(),
	).Run()
}
