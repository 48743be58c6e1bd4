package trading

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/backup"
	"signal_bot/internal/engine"
	"signal_bot/internal/exchange"
	"signal_bot/internal/metrics"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/internal/risk"
	"signal_bot/internal/store"
	"signal_bot/internal/symbols"
)

const nodeID = 1

// Module — риск-менеджер и движок позиций.
func Module() fx.Option {
	return fx.Module("trading",
		fx.Provide(
			func(cfg *config.Config, c *exchange.Client, log *zap.Logger) *risk.Manager {
				return risk.NewManager(cfg.Trading, c, log)
			},
			func(cfg *config.Config) *symbols.Mapper {
				return symbols.NewMapper(cfg.Symbols)
			},
			store.New,
			newEngine,
		),
		fx.Invoke(attachTelegram),
	)
}

type engineParams struct {
	fx.In

	Config     *config.Config
	Risk       *risk.Manager
	Client     *exchange.Client
	Feed       *exchange.PriceFeed
	Notifier   engine.Notifier
	Store      *store.Store
	Mapper     *symbols.Mapper
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Shutdowner fx.Shutdowner
}

func newEngine(p engineParams) (*engine.Engine, error) {
	e, err := engine.New(engine.Deps{
		Config: engine.Config{
			StrategyName:        p.Config.Strategy.Name,
			ConfirmationTimeout: p.Config.Strategy.ConfirmationTimeout,
			StopLossPercent:     p.Config.Trading.StopLossPercent,
			OrderTimeout:        p.Config.WhiteBit.OrderTimeout,
		},
		Risk:     p.Risk,
		Exchange: p.Client,
		Prices:   p.Feed,
		Notifier: p.Notifier,
		Store:    p.Store,
		Mapper:   p.Mapper,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
		Watcher:  p.Feed,
		NodeID:   nodeID,
	})
	if err != nil {
		return nil, err
	}

	// непредвиденный сбой: сообщаем оператору и останавливаем процесс,
	// финальный снимок сохранит OnStop раннера
	e.OnFault(func(ferr error) {
		p.Logger.Error("engine fault, shutting down", zap.Error(ferr))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Notifier.Send(ctx, "🚨 *Критическая ошибка*\n`"+ferr.Error()+"`\nБот останавливается")
		if err := p.Shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
			p.Logger.Error("shutdown failed", zap.Error(err))
		}
	})
	return e, nil
}

func attachTelegram(cfg *config.Config, tg *notify.Telegram, e *engine.Engine, c *exchange.Client, b *backup.Service) {
	if tg == nil {
		return
	}
	tg.Attach(notify.Handlers{
		Engine:  e,
		Markets: c,
		API:     c,
		Backup:  b,
		Config:  cfg.Dump,
		Quote:   cfg.Trading.QuoteCurrency,
	})
}
