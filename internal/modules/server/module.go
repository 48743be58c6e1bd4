package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/engine"
	"signal_bot/internal/metrics"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/server"
	"signal_bot/internal/webhook"
)

// Module — HTTP: вебхук сигналов, health-пробы и /metrics.
func Module() fx.Option {
	return fx.Module("server",
		fx.Provide(
			server.NewState,
			func(cfg *config.Config, e *engine.Engine, st *server.State, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
				r := server.NewRouter(log)
				server.RegisterHealth(r, st)
				r.GET("/metrics", gin.WrapH(m.Handler()))
				webhook.NewHandler(e, st, cfg.Webhook.Secret, log).Register(r)
				return r
			},
			func(cfg *config.Config, r *gin.Engine, log *zap.Logger) *server.Server {
				addr := fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.PublicPort)
				return server.New(addr, r, log)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *server.Server) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { return s.Start() },
				OnStop:  s.Shutdown,
			})
		}),
	)
}
