package exchange

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/exchange"
	"signal_bot/internal/metrics"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/server"
)

// Module — REST клиент WhiteBit и WS фид цен.
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			func(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *exchange.Client {
				c := exchange.NewClient(cfg.WhiteBit, log)
				c.SetObserver(m.ObserveRequest)
				return c
			},
			func(cfg *config.Config, c *exchange.Client, st *server.State, m *metrics.Metrics, log *zap.Logger) *exchange.PriceFeed {
				f := exchange.NewPriceFeed(cfg.WhiteBit.WSURL, c, cfg.WhiteBit.PriceMaxAge, log)
				f.OnState(func(connected bool) {
					st.SetFeedConnected(connected)
					m.FeedState(connected)
				})
				f.OnTick(func(at time.Time) {
					st.TouchTick(at)
					m.FeedTick(at)
				})
				return f
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, c *exchange.Client, f *exchange.PriceFeed, log *zap.Logger) {
			runCtx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if t, err := c.ServerTime(ctx); err != nil {
						log.Warn("whitebit is unreachable at start", zap.Error(err))
					} else {
						log.Info("whitebit reachable", zap.Duration("clock_skew", time.Since(t)))
					}
					go func() {
						defer close(done)
						f.Run(runCtx)
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-ctx.Done():
					}
					return nil
				},
			})
		}),
	)
}
