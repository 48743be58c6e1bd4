package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/engine"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
)

// Module выбирает канал до оператора: Telegram при заданном токене, иначе лог.
func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) (*notify.Telegram, error) {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					log.Warn("telegram is not configured, notifications go to the log")
					return nil, nil
				}
				return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
			},
			func(tg *notify.Telegram, log *zap.Logger) engine.Notifier {
				if tg != nil {
					return tg
				}
				return notify.NewStdout(log)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, tg *notify.Telegram) {
			if tg == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					tg.Start()
					return nil
				},
				OnStop: func(context.Context) error {
					tg.Stop()
					return nil
				},
			})
		}),
	)
}
