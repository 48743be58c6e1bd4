package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/risk"
	"signal_bot/pkg/tracing"
)

type MonitorReport struct {
	Checked int
	Closed  int
	Partial int
	Failed  int
}

// MonitorPositions проверяет каждую позицию; сбой по одной не останавливает обход.
func (e *Engine) MonitorPositions(ctx context.Context) (rep MonitorReport) {
	span, ctx := tracing.StartSpan(ctx, "engine.MonitorPositions")
	defer func() {
		span.SetTag("checked", rep.Checked)
		tracing.Finish(span, nil)
	}()

	for _, p := range e.store.Positions() {
		rep.Checked++
		err := e.guard("monitor", func() error {
			return e.monitorOne(ctx, p, &rep)
		})
		if err != nil {
			rep.Failed++
			e.log.Error("monitor position failed", zap.String("symbol", p.Symbol), zap.Error(err))
		}
	}

	if rep.Checked > 0 {
		e.log.Info("monitor sweep",
			zap.Int("checked", rep.Checked),
			zap.Int("closed", rep.Closed),
			zap.Int("partial", rep.Partial),
			zap.Int("failed", rep.Failed))
	}
	return rep
}

func (e *Engine) monitorOne(ctx context.Context, p *models.Position, rep *MonitorReport) error {
	price, err := e.prices.LastPrice(ctx, p.Symbol)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}

	adv := e.risk.Advise(p, price)
	e.log.Debug("position check",
		zap.String("symbol", p.Symbol),
		zap.Float64("price", price),
		zap.Float64("pnl", p.PnLPercent(price)),
		zap.String("risk_level", string(adv.RiskLevel)),
		zap.String("advice", adv.Action),
		zap.Strings("reasons", adv.Reasons))

	if d := e.risk.ShouldClosePosition(p, price); d.ShouldClose {
		closed, err := e.ClosePosition(ctx, p.Symbol, d.Reason)
		if err != nil {
			return err
		}
		if closed != nil {
			rep.Closed++
		}
		return nil
	}

	for _, tp := range p.TakeProfitLevels {
		if p.HasPartialClose(tp.Level) || !risk.TakeProfitReached(p, tp, price) {
			continue
		}
		pos, err := e.PartialClose(ctx, p.Symbol, tp.ClosePercentage, tp.Level)
		if err != nil {
			return fmt.Errorf("TP%d: %w", tp.Level, err)
		}
		if pos == nil {
			break
		}
		if pos.Status == models.PositionClosed {
			rep.Closed++
			break
		}
		if pos.HasPartialClose(tp.Level) {
			rep.Partial++
		}
	}
	return nil
}
