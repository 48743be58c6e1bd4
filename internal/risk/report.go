package risk

import (
	"context"
	"fmt"

	"signal_bot/internal/models"
)

func (m *Manager) GetRiskReport(ctx context.Context, openCount int) (models.RiskReport, error) {
	balance, err := m.ex.GetCurrencyBalance(ctx, m.cfg.QuoteCurrency)
	if err != nil {
		return models.RiskReport{}, fmt.Errorf("risk report balance: %w", err)
	}

	loss := m.currentLossPercent(balance)
	daily := m.DailyStats()

	r := models.RiskReport{
		GeneratedAt:        m.now(),
		BalanceCurrent:     balance,
		BalanceStart:       daily.DayStartBalance,
		BalanceChange:      balance - daily.DayStartBalance,
		PositionCount:      openCount,
		MaxPositions:       m.cfg.MaxOpenPositions,
		MaxDailyLossPct:    m.cfg.MaxDailyLoss,
		CurrentLossPct:     loss,
		DailyTradeCount:    daily.TradeCount,
		DailyCumulativePnL: daily.CumulativePnL,
	}
	if daily.DayStartBalance > 0 {
		r.BalanceChangePercent = r.BalanceChange / daily.DayStartBalance * 100
	}
	if m.cfg.MaxOpenPositions > 0 {
		r.PositionUtilPct = float64(openCount) / float64(m.cfg.MaxOpenPositions) * 100
	}
	if m.cfg.MaxDailyLoss > 0 {
		r.DailyLossUtilPct = loss / m.cfg.MaxDailyLoss * 100
	}

	if r.PositionUtilPct > 80 {
		r.Recommendations = append(r.Recommendations, "REDUCE_POSITIONS: too many open positions")
	}
	if loss > m.cfg.MaxDailyLoss/2 {
		r.Recommendations = append(r.Recommendations, "REDUCE_RISK: approaching daily loss limit")
	}
	if r.BalanceChangePercent < -5 {
		r.Recommendations = append(r.Recommendations, "REVIEW_STRATEGY: significant drawdown")
	}
	return r, nil
}

// Advise — справочная оценка позиции для лога мониторинга, на торговлю не влияет.
func (m *Manager) Advise(pos *models.Position, price float64) models.PositionAdvice {
	adv := models.PositionAdvice{Action: "HOLD", RiskLevel: models.RiskLow}

	pnl := pos.PnLPercent(price)
	switch {
	case pnl <= -2:
		adv.RiskLevel = models.RiskHigh
		adv.Reasons = append(adv.Reasons, fmt.Sprintf("loss %.2f%%", pnl))
	case pnl <= -1:
		adv.RiskLevel = models.RiskMedium
	}

	for _, tp := range pos.TakeProfitLevels {
		if TakeProfitReached(pos, tp, price) {
			adv.Action = "PARTIAL_CLOSE"
			adv.Reasons = append(adv.Reasons, fmt.Sprintf("TP%d reached", tp.Level))
		}
	}

	if d := m.ShouldClosePosition(pos, price); d.ShouldClose && d.Kind == models.CloseStopLoss {
		adv.Action = "CLOSE"
		adv.RiskLevel = models.RiskCritical
		adv.Reasons = append(adv.Reasons, "stop loss triggered")
	}
	return adv
}
