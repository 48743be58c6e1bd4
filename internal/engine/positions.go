package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/pkg/tracing"
)

// OpenLong покупает по рынку на сумму из риск-менеджера и заводит позицию.
// До успешного ордера состояние не меняется.
func (e *Engine) OpenLong(ctx context.Context, symbol string, price float64, sig models.Signal) (pos *models.Position, err error) {
	span, ctx := tracing.StartSpan(ctx, "engine.OpenLong")
	span.SetTag("symbol", symbol)
	defer func() { tracing.Finish(span, err) }()

	unlock := e.locks.Lock(symbol)
	defer unlock()

	if e.store.HasPosition(symbol) {
		return nil, fmt.Errorf("%w: %s", models.ErrPositionExists, symbol)
	}
	if price <= 0 {
		if price, err = e.prices.LastPrice(ctx, symbol); err != nil {
			return nil, fmt.Errorf("price for %s: %w", symbol, err)
		}
	}

	amount, err := e.risk.CalculatePositionSize(ctx, symbol, price, e.store.PositionCount())
	if err != nil {
		e.send(ctx, fmt.Sprintf("🚫 `%s`: позиция не открыта: %v", symbol, err))
		return nil, err
	}

	v := e.risk.ValidateOrder(ctx, symbol, models.OrderBuy, amount/price, price)
	for _, w := range v.Warnings {
		e.log.Warn("buy order warning", zap.String("symbol", symbol), zap.String("warning", w))
	}
	if !v.Valid {
		msg := strings.Join(v.Errors, "; ")
		e.send(ctx, fmt.Sprintf("❌ `%s`: ордер не прошёл проверку: %s", symbol, msg))
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, msg)
	}

	ctx, cancel := e.orderContext(ctx)
	defer cancel()

	res, err := e.ex.CreateMarketBuyOrder(ctx, symbol, amount)
	e.metrics.OrderPlaced(string(models.OrderBuy), err)
	if err != nil {
		e.send(ctx, fmt.Sprintf("❌ `%s`: ошибка покупки: %v", symbol, err))
		return nil, fmt.Errorf("market buy %s: %w", symbol, err)
	}

	fill, ok := res.FillPrice()
	estimated := !ok
	if !ok {
		fill = price
	}
	qty := res.DealStock
	if qty <= 0 {
		qty = decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(fill)).RoundFloor(quantityPlaces).InexactFloat64()
		estimated = true
	}
	notional := res.DealMoney
	if notional <= 0 {
		notional = amount
	}
	if estimated {
		e.log.Warn("fill data missing, using estimate",
			zap.String("symbol", symbol), zap.String("order_id", res.OrderID), zap.Float64("price", fill), zap.Float64("qty", qty))
	}

	now := e.now()
	pos = &models.Position{
		Symbol:            symbol,
		OriginalSymbol:    sig.Ticker,
		Side:              models.SideLong,
		EntryPrice:        fill,
		Quantity:          qty,
		RemainingQuantity: qty,
		Notional:          notional,
		OrderID:           res.OrderID,
		FillEstimated:     estimated,
		TakeProfitLevels:  e.risk.CalculateTakeProfitLevels(fill, models.SideLong),
		StopLossPrice:     e.risk.CalculateStopLoss(fill, models.SideLong, e.cfg.StopLossPercent),
		Status:            models.PositionActive,
		OpenTime:          now,
		Signal:            sig,
	}
	e.store.AddPosition(pos)
	e.store.AppendHistory(models.OrderHistoryEntry{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Action:         models.HistoryOpenLong,
		Symbol:         symbol,
		OriginalSymbol: sig.Ticker,
		Price:          fill,
		Quantity:       qty,
		Notional:       notional,
		OrderID:        res.OrderID,
		Estimated:      estimated,
	})
	e.syncGauges()
	if e.watcher != nil {
		e.watcher.Watch(symbol)
	}

	e.log.Info("position opened",
		zap.String("symbol", symbol),
		zap.String("order_id", res.OrderID),
		zap.Float64("qty", qty),
		zap.Float64("price", fill),
		zap.Float64("notional", notional))
	e.send(ctx, formatOpened(pos))
	return pos.Clone(), nil
}

// ClosePosition продаёт весь остаток. Нет позиции — no-op без ошибки.
func (e *Engine) ClosePosition(ctx context.Context, symbol, reason string) (pos *models.Position, err error) {
	span, ctx := tracing.StartSpan(ctx, "engine.ClosePosition")
	span.SetTag("symbol", symbol)
	defer func() { tracing.Finish(span, err) }()

	unlock := e.locks.Lock(symbol)
	defer unlock()

	pos, ok := e.store.Position(symbol)
	if !ok || !pos.IsOpen() {
		e.log.Info("close skipped, no open position", zap.String("symbol", symbol), zap.String("reason", reason))
		return nil, nil
	}
	return e.closeLocked(ctx, pos, reason)
}

func (e *Engine) closeLocked(ctx context.Context, pos *models.Position, reason string) (*models.Position, error) {
	qty := pos.RemainingQuantity

	v := e.risk.ValidateOrder(ctx, pos.Symbol, models.OrderSell, qty, 0)
	if !v.Valid {
		msg := strings.Join(v.Errors, "; ")
		e.send(ctx, fmt.Sprintf("❌ `%s`: закрытие не прошло проверку: %s", pos.Symbol, msg))
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, msg)
	}

	ctx, cancel := e.orderContext(ctx)
	defer cancel()

	res, err := e.ex.CreateMarketSellOrder(ctx, pos.Symbol, qty)
	e.metrics.OrderPlaced(string(models.OrderSell), err)
	if err != nil {
		e.send(ctx, fmt.Sprintf("❌ `%s`: ошибка закрытия: %v", pos.Symbol, err))
		return nil, fmt.Errorf("market sell %s: %w", pos.Symbol, err)
	}

	exit, estimated := e.sellPrice(ctx, res, pos)
	now := e.now()

	legPnL := pos.PnLPercent(exit)
	proceeds := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(exit))
	for _, pc := range pos.PartialCloses {
		proceeds = proceeds.Add(decimal.NewFromFloat(pc.Quantity).Mul(decimal.NewFromFloat(pc.Price)))
	}
	cost := decimal.NewFromFloat(pos.Quantity).Mul(decimal.NewFromFloat(pos.EntryPrice))
	total := legPnL
	if cost.IsPositive() {
		total = proceeds.Sub(cost).Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	pos.RemainingQuantity = 0
	pos.Status = models.PositionClosed
	pos.ExitPrice = exit
	pos.ExitTime = now
	pos.CloseReason = reason
	pos.TotalPnLPercent = total

	e.store.RemovePosition(pos.Symbol)
	e.store.AppendHistory(models.OrderHistoryEntry{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Action:         models.HistoryClose,
		Symbol:         pos.Symbol,
		OriginalSymbol: pos.OriginalSymbol,
		Price:          exit,
		EntryPrice:     pos.EntryPrice,
		Quantity:       qty,
		PnLPercent:     total,
		Reason:         reason,
		OrderID:        res.OrderID,
		Estimated:      estimated,
	})
	e.store.UpdateStats(func(s *models.TradeStats) {
		s.TotalTrades++
		if total > 0 {
			s.Profitable++
		} else {
			s.Losing++
		}
		s.TotalPnL += total
	})
	e.risk.RecordTrade(qty * (exit - pos.EntryPrice))
	e.syncGauges()
	e.metrics.PositionClosed(reason, total)
	if e.watcher != nil {
		e.watcher.Unwatch(pos.Symbol)
	}

	e.log.Info("position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("order_id", res.OrderID),
		zap.String("reason", reason),
		zap.Float64("qty", qty),
		zap.Float64("price", exit),
		zap.Float64("pnl", total))
	e.send(ctx, formatClosed(pos, qty, legPnL, estimated))
	return pos, nil
}

// PartialClose фиксирует percentage процентов остатка. level > 0 — уровень TP,
// повторная фиксация того же уровня игнорируется.
func (e *Engine) PartialClose(ctx context.Context, symbol string, percentage float64, level int) (pos *models.Position, err error) {
	span, ctx := tracing.StartSpan(ctx, "engine.PartialClose")
	span.SetTag("symbol", symbol)
	span.SetTag("level", level)
	defer func() { tracing.Finish(span, err) }()

	unlock := e.locks.Lock(symbol)
	defer unlock()

	pos, ok := e.store.Position(symbol)
	if !ok || !pos.IsOpen() {
		e.log.Info("partial close skipped, no open position", zap.String("symbol", symbol), zap.Int("level", level))
		return nil, nil
	}
	if level > 0 && pos.HasPartialClose(level) {
		e.log.Info("partial close skipped, level already taken", zap.String("symbol", symbol), zap.Int("level", level))
		return pos, nil
	}

	qty := e.risk.CalculatePartialCloseAmount(pos, percentage)
	if qty <= 0 {
		e.log.Info("partial close skipped, nothing to sell", zap.String("symbol", symbol), zap.Float64("pct", percentage))
		return pos, nil
	}
	if qty >= pos.RemainingQuantity {
		return e.closeLocked(ctx, pos, fmt.Sprintf("TP%d", level))
	}

	v := e.risk.ValidateOrder(ctx, symbol, models.OrderSell, qty, 0)
	if !v.Valid {
		msg := strings.Join(v.Errors, "; ")
		e.send(ctx, fmt.Sprintf("⚠️ `%s`: частичное закрытие TP%d не прошло проверку: %s", symbol, level, msg))
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, msg)
	}

	ctx, cancel := e.orderContext(ctx)
	defer cancel()

	res, err := e.ex.CreateMarketSellOrder(ctx, symbol, qty)
	e.metrics.OrderPlaced(string(models.OrderSell), err)
	if err != nil {
		e.send(ctx, fmt.Sprintf("❌ `%s`: ошибка частичного закрытия: %v", symbol, err))
		return nil, fmt.Errorf("market sell %s: %w", symbol, err)
	}

	price, estimated := e.sellPrice(ctx, res, pos)
	now := e.now()
	pnl := pos.PnLPercent(price)
	received := res.DealMoney
	if received <= 0 {
		received = qty * price
	}

	pos.RemainingQuantity = decimal.NewFromFloat(pos.RemainingQuantity).
		Sub(decimal.NewFromFloat(qty)).
		Round(quantityPlaces).
		InexactFloat64()
	pos.PartialCloses = append(pos.PartialCloses, models.PartialClose{
		Level:      level,
		Percentage: percentage,
		Quantity:   qty,
		Price:      price,
		PnLPercent: pnl,
		Received:   received,
		OrderID:    res.OrderID,
		Estimated:  estimated,
		Timestamp:  now,
	})
	e.store.UpdatePosition(pos)
	e.store.AppendHistory(models.OrderHistoryEntry{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Action:         models.HistoryPartialClose,
		Symbol:         symbol,
		OriginalSymbol: pos.OriginalSymbol,
		Level:          level,
		Percentage:     percentage,
		Price:          price,
		EntryPrice:     pos.EntryPrice,
		Quantity:       qty,
		PnLPercent:     pnl,
		OrderID:        res.OrderID,
		Estimated:      estimated,
	})
	e.risk.RecordTrade(qty * (price - pos.EntryPrice))

	e.log.Info("partial close",
		zap.String("symbol", symbol),
		zap.String("order_id", res.OrderID),
		zap.Int("level", level),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("remaining", pos.RemainingQuantity),
		zap.Float64("pnl", pnl))
	e.send(ctx, formatPartial(pos, qty, price, pnl, level, estimated))
	return pos.Clone(), nil
}

// sellPrice: цена из сделки, иначе текущая цена, иначе цена входа.
func (e *Engine) sellPrice(ctx context.Context, res models.OrderResult, pos *models.Position) (float64, bool) {
	if px, ok := res.FillPrice(); ok {
		return px, false
	}
	px, err := e.prices.LastPrice(ctx, pos.Symbol)
	if err != nil || px <= 0 {
		e.log.Warn("sell fill and market price unavailable, using entry price",
			zap.String("symbol", pos.Symbol), zap.String("order_id", res.OrderID), zap.Error(err))
		return pos.EntryPrice, true
	}
	e.log.Warn("sell fill data missing, using market price",
		zap.String("symbol", pos.Symbol), zap.String("order_id", res.OrderID), zap.Float64("price", px))
	return px, true
}

type CloseResult struct {
	Symbol   string
	Position *models.Position
	Err      error
}

// CloseAll закрывает все открытые позиции, ошибки по символам не прерывают обход.
func (e *Engine) CloseAll(ctx context.Context, reason string) []CloseResult {
	var out []CloseResult
	for _, p := range e.store.Positions() {
		var closed *models.Position
		err := e.guard("close_all", func() error {
			var err error
			closed, err = e.ClosePosition(ctx, p.Symbol, reason)
			return err
		})
		if err != nil {
			e.log.Error("close all: symbol failed", zap.String("symbol", p.Symbol), zap.Error(err))
		}
		out = append(out, CloseResult{Symbol: p.Symbol, Position: closed, Err: err})
	}
	return out
}
