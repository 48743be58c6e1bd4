package risk

import (
	"go.uber.org/zap"

	"signal_bot/internal/models"
)

const dayLayout = "2006-01-02"

// rollDay сбрасывает дневную статистику при смене дня. Вызывать под m.mu.
func (m *Manager) rollDay() {
	today := m.now().Format(dayLayout)
	if m.daily.Day == today {
		return
	}
	if m.daily.Day != "" {
		m.log.Info("daily stats reset",
			zap.String("prev_day", m.daily.Day),
			zap.Float64("pnl", m.daily.CumulativePnL),
			zap.Int("trades", m.daily.TradeCount))
	}
	m.daily = models.DailyRiskStats{Day: today}
}

// currentLossPercent — просадка от баланса на начало дня, в процентах.
func (m *Manager) currentLossPercent(balance float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDay()
	if m.daily.DayStartBalance <= 0 {
		m.daily.DayStartBalance = balance
	}
	if m.daily.DayStartBalance <= 0 {
		return 0
	}
	return (m.daily.DayStartBalance - balance) / m.daily.DayStartBalance * 100
}

// RecordTrade учитывает реализованный результат закрытия в дневной статистике.
func (m *Manager) RecordTrade(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDay()
	m.daily.CumulativePnL += pnl
	m.daily.TradeCount++
}

func (m *Manager) DailyStats() models.DailyRiskStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDay()
	return m.daily
}
