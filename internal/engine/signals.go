package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/pkg/tracing"
)

// ProcessSignal маршрутизирует входящий сигнал. Сигналы чужой стратегии
// и неизвестные действия отбрасываются без изменения состояния.
func (e *Engine) ProcessSignal(ctx context.Context, sig models.Signal) (err error) {
	sig = sig.Normalize()

	span, ctx := tracing.StartSpan(ctx, "engine.ProcessSignal")
	span.SetTag("action", string(sig.Action))
	span.SetTag("ticker", sig.Ticker)
	defer func() { tracing.Finish(span, err) }()

	e.metrics.SignalReceived(string(sig.Action))
	log := e.log.With(zap.String("action", string(sig.Action)), zap.String("ticker", sig.Ticker), zap.Float64("price", sig.Price))

	if sig.Strategy != e.cfg.StrategyName {
		log.Info("signal dropped: strategy mismatch", zap.String("strategy", sig.Strategy), zap.String("expected", e.cfg.StrategyName))
		e.metrics.SignalRejected("strategy_mismatch")
		return fmt.Errorf("%w: strategy %q", models.ErrSignalIgnored, sig.Strategy)
	}

	return e.guard("process_signal", func() error {
		switch sig.Action {
		case models.ActionBuy:
			return e.handleEntry(ctx, sig)
		case models.ActionTP1, models.ActionTP2, models.ActionTP3:
			return e.handleTakeProfit(ctx, sig)
		case models.ActionSL:
			return e.handleExit(ctx, sig, "Stop Loss")
		case models.ActionExit:
			reason := sig.Message
			if reason == "" {
				reason = "Exit signal"
			}
			return e.handleExit(ctx, sig, reason)
		default:
			log.Warn("unrecognized signal action")
			e.metrics.SignalRejected("unknown_action")
			return fmt.Errorf("%w: %q", models.ErrUnknownSignal, sig.Action)
		}
	})
}

func (e *Engine) handleEntry(ctx context.Context, sig models.Signal) error {
	symbol := e.mapper.Resolve(sig.Ticker)
	if symbol == "" {
		return fmt.Errorf("%w: empty ticker", models.ErrValidation)
	}

	if e.store.HasPosition(symbol) {
		e.log.Info("entry skipped, position already open", zap.String("symbol", symbol))
		e.send(ctx, fmt.Sprintf("ℹ️ Позиция по `%s` уже открыта, сигнал BUY пропущен", symbol))
		return fmt.Errorf("%w: %s", models.ErrPositionExists, symbol)
	}

	if sig.Price <= 0 {
		px, err := e.prices.LastPrice(ctx, symbol)
		if err != nil {
			return fmt.Errorf("price for %s: %w", symbol, err)
		}
		sig.Price = px
	}

	d := e.risk.CanOpenPosition(ctx, symbol, sig.Price, e.store.PositionCount())
	if !d.Allowed {
		e.log.Info("entry not allowed", zap.String("symbol", symbol), zap.String("reason", d.Reason))
		e.metrics.SignalRejected("risk")
		e.send(ctx, fmt.Sprintf("🚫 Сигнал BUY `%s` отклонён: %s", symbol, d.Reason))
		return fmt.Errorf("%w: %s", models.ErrRiskLimit, d.Reason)
	}

	return e.requestConfirmation(ctx, sig, symbol)
}

func (e *Engine) handleTakeProfit(ctx context.Context, sig models.Signal) error {
	symbol := e.mapper.Resolve(sig.Ticker)
	if !e.store.HasPosition(symbol) {
		e.log.Info("take profit ignored, no open position", zap.String("symbol", symbol), zap.String("action", string(sig.Action)))
		return nil
	}

	level := sig.Action.TakeProfitLevel()
	pct, ok := e.risk.TakeProfitClosePercent(level)
	if !ok {
		e.log.Warn("take profit level not configured", zap.Int("level", level))
		return fmt.Errorf("%w: level %d not configured", models.ErrSignalIgnored, level)
	}

	_, err := e.PartialClose(ctx, symbol, pct, level)
	return err
}

func (e *Engine) handleExit(ctx context.Context, sig models.Signal, reason string) error {
	symbol := e.mapper.Resolve(sig.Ticker)
	_, err := e.ClosePosition(ctx, symbol, reason)
	return err
}
