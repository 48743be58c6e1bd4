package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"signal_bot/internal/models"
)

const quantityPlaces = 8

var hundred = decimal.NewFromInt(100)

// offsetPrice сдвигает цену на pct процентов в сторону up/down.
func offsetPrice(price, pct float64, up bool) float64 {
	k := decimal.NewFromFloat(pct).Div(hundred)
	if !up {
		k = k.Neg()
	}
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(1).Add(k)).Round(quantityPlaces).InexactFloat64()
}

func (m *Manager) CalculateTakeProfitLevels(entry float64, side models.PositionSide) []models.TakeProfitLevel {
	levels := make([]models.TakeProfitLevel, 0, len(m.cfg.TakeProfitOffsets))
	for i, off := range m.cfg.TakeProfitOffsets {
		closePct := 25.0
		if i < len(m.cfg.TakeProfitClosePcts) {
			closePct = m.cfg.TakeProfitClosePcts[i]
		}
		levels = append(levels, models.TakeProfitLevel{
			Level:           i + 1,
			Price:           offsetPrice(entry, off, side != models.SideShort),
			ClosePercentage: closePct,
		})
	}
	return levels
}

// CalculateStopLoss: slPercent <= 0 берёт значение из конфига.
func (m *Manager) CalculateStopLoss(entry float64, side models.PositionSide, slPercent float64) float64 {
	if slPercent <= 0 {
		slPercent = m.cfg.StopLossPercent
	}
	return offsetPrice(entry, slPercent, side == models.SideShort)
}

// TakeProfitClosePercent returns the configured close share for level 1..n.
func (m *Manager) TakeProfitClosePercent(level int) (float64, bool) {
	if level < 1 || level > len(m.cfg.TakeProfitClosePcts) {
		return 0, false
	}
	return m.cfg.TakeProfitClosePcts[level-1], true
}

func (m *Manager) ShouldClosePosition(pos *models.Position, price float64) models.CloseDecision {
	pnl := pos.PnLPercent(price)

	slHit := price <= pos.StopLossPrice
	if pos.Side == models.SideShort {
		slHit = price >= pos.StopLossPrice
	}
	if pos.StopLossPrice > 0 && slHit {
		return models.CloseDecision{
			ShouldClose: true,
			Reason:      fmt.Sprintf("Stop Loss hit at %.8g (%.2f%%)", price, pnl),
			Kind:        models.CloseStopLoss,
			PnLPercent:  pnl,
		}
	}

	if pnl <= -m.cfg.MaxLossPerPosition {
		return models.CloseDecision{
			ShouldClose: true,
			Reason:      fmt.Sprintf("Max loss per position reached (%.2f%%)", pnl),
			Kind:        models.CloseMaxLoss,
			PnLPercent:  pnl,
		}
	}

	return models.CloseDecision{PnLPercent: pnl}
}

// TakeProfitReached сообщает, достигнута ли цель уровня.
func TakeProfitReached(pos *models.Position, tp models.TakeProfitLevel, price float64) bool {
	if pos.Side == models.SideShort {
		return price <= tp.Price
	}
	return price >= tp.Price
}

// CalculatePartialCloseAmount: remaining * pct / 100 с отсечением до 8 знаков вниз.
func (m *Manager) CalculatePartialCloseAmount(pos *models.Position, percentage float64) float64 {
	remaining := decimal.NewFromFloat(pos.RemainingQuantity)
	if !remaining.IsPositive() || percentage <= 0 {
		return 0
	}
	if percentage >= 100 {
		return pos.RemainingQuantity
	}

	qty := remaining.Mul(decimal.NewFromFloat(percentage)).Div(hundred).RoundFloor(quantityPlaces)
	if qty.GreaterThan(remaining) {
		qty = remaining
	}
	return qty.InexactFloat64()
}

// ValidateOrder: amount — количество базовой валюты, price нужен для проверки суммы покупки.
func (m *Manager) ValidateOrder(ctx context.Context, symbol string, side models.OrderSide, amount, price float64) models.ValidationResult {
	res := models.ValidationResult{Valid: true}

	limits, err := m.ex.GetMarketLimits(ctx, symbol)
	if err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("market limits unavailable for %s: %v", symbol, err))
		return res
	}

	if amount <= 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("amount must be positive, got %.8f", amount))
	} else if limits.MinAmount > 0 && amount < limits.MinAmount {
		res.Errors = append(res.Errors, fmt.Sprintf("amount %.8f below market minimum %.8f", amount, limits.MinAmount))
	}

	if side == models.OrderBuy {
		if price <= 0 {
			res.Errors = append(res.Errors, "price is required to check order total")
		} else {
			total := amount * price
			if limits.MinTotal > 0 && total < limits.MinTotal {
				res.Errors = append(res.Errors, fmt.Sprintf("total %.8f below market minimum %.8f", total, limits.MinTotal))
			}
			if limits.MaxTotal > 0 && total > limits.MaxTotal {
				res.Errors = append(res.Errors, fmt.Sprintf("total %.8f above market maximum %.8f", total, limits.MaxTotal))
			}
		}
	}

	if n := decimalPlaces(amount); limits.StockPrec > 0 && n > limits.StockPrec {
		res.Warnings = append(res.Warnings, fmt.Sprintf("amount has %d decimals, market allows %d", n, limits.StockPrec))
	}
	if n := decimalPlaces(price); price > 0 && limits.MoneyPrec > 0 && n > limits.MoneyPrec {
		res.Warnings = append(res.Warnings, fmt.Sprintf("price has %d decimals, market allows %d", n, limits.MoneyPrec))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func decimalPlaces(v float64) int {
	exp := decimal.NewFromFloat(v).Exponent()
	if exp >= 0 {
		return 0
	}
	return int(-exp)
}
