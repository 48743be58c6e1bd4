package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal_bot/internal/models"
)

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func px(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func signed(v float64) string {
	if v > 0 {
		return "+" + f2(v)
	}
	return f2(v)
}

func pnlIcon(v float64) string {
	if v >= 0 {
		return "🟢"
	}
	return "🔴"
}

func estimatedNote(estimated bool) string {
	if !estimated {
		return ""
	}
	return "\n⚠️ _Биржа не вернула данные исполнения, цена оценочная_"
}

func formatConfirmRequest(p models.PendingSignal, timeout time.Duration) string {
	return fmt.Sprintf(
		"*🔔 Сигнал BUY*\n\n"+
			"Тикер: `%s`\n"+
			"Символ: `%s`\n"+
			"Цена: `%s`\n"+
			"Стратегия: %s\n\n"+
			"Подтвердить в течение `%s`",
		p.Signal.Ticker,
		p.Symbol,
		px(p.Signal.Price),
		p.Signal.Strategy,
		timeout.String(),
	)
}

func formatOpened(p *models.Position) string {
	var tps strings.Builder
	for _, tp := range p.TakeProfitLevels {
		fmt.Fprintf(&tps, "  TP%d: `%s` (%s%%)\n", tp.Level, px(tp.Price), f2(tp.ClosePercentage))
	}
	return fmt.Sprintf(
		"*✅ Позиция открыта*\n\n"+
			"Символ: `%s`\n"+
			"Вход: `%s`\n"+
			"Количество: `%s`\n"+
			"Сумма: `%s`\n"+
			"Ордер: `%s`\n\n"+
			"*Цели*\n%s"+
			"  SL: `%s`%s",
		p.Symbol,
		px(p.EntryPrice),
		px(p.Quantity),
		f2(p.Notional),
		p.OrderID,
		tps.String(),
		px(p.StopLossPrice),
		estimatedNote(p.FillEstimated),
	)
}

func formatPartial(p *models.Position, qty, price, pnl float64, level int, estimated bool) string {
	return fmt.Sprintf(
		"*💰 Частичное закрытие TP%d*\n\n"+
			"Символ: `%s`\n"+
			"Продано: `%s` по `%s`\n"+
			"PnL: %s `%s%%`\n"+
			"Остаток: `%s`%s",
		level,
		p.Symbol,
		px(qty), px(price),
		pnlIcon(pnl), signed(pnl),
		px(p.RemainingQuantity),
		estimatedNote(estimated),
	)
}

func formatClosed(p *models.Position, qty, legPnL float64, estimated bool) string {
	return fmt.Sprintf(
		"*🏁 Позиция закрыта*\n\n"+
			"Символ: `%s`\n"+
			"Причина: %s\n"+
			"Вход: `%s` → Выход: `%s`\n"+
			"Продано: `%s`\n"+
			"PnL остатка: %s `%s%%`\n"+
			"PnL итого: %s `%s%%`\n"+
			"Длительность: `%s`%s",
		p.Symbol,
		p.CloseReason,
		px(p.EntryPrice), px(p.ExitPrice),
		px(qty),
		pnlIcon(legPnL), signed(legPnL),
		pnlIcon(p.TotalPnLPercent), signed(p.TotalPnLPercent),
		p.ExitTime.Sub(p.OpenTime).Round(time.Second).String(),
		estimatedNote(estimated),
	)
}

// StatusText — сводка для команды /status.
func (e *Engine) StatusText() string {
	var b strings.Builder
	b.WriteString(e.StatsText())

	positions := e.store.Positions()
	fmt.Fprintf(&b, "\n\n*📂 Открытые позиции (%d)*\n", len(positions))
	if len(positions) == 0 {
		b.WriteString("нет")
	}
	for _, p := range positions {
		fmt.Fprintf(&b, "\n`%s` вход `%s`, остаток `%s` из `%s`, SL `%s`", p.Symbol, px(p.EntryPrice), px(p.RemainingQuantity), px(p.Quantity), px(p.StopLossPrice))
		for _, pc := range p.PartialCloses {
			fmt.Fprintf(&b, "\n  TP%d: `%s` по `%s`", pc.Level, px(pc.Quantity), px(pc.Price))
		}
	}
	fmt.Fprintf(&b, "\n\nОжидают подтверждения: `%d`", e.store.PendingCount())
	return b.String()
}

func (e *Engine) StatsText() string {
	s := e.store.Stats()
	return fmt.Sprintf(
		"*📊 Статистика*\n\n"+
			"Сделок: `%d`\n"+
			"Прибыльных: `%d`\n"+
			"Убыточных: `%d`\n"+
			"Win rate: `%s%%`\n"+
			"Суммарный PnL: `%s%%`\n"+
			"Средний PnL: `%s%%`",
		s.TotalTrades, s.Profitable, s.Losing,
		f2(s.WinRate()), signed(s.TotalPnL), signed(s.AveragePnL()),
	)
}

func (e *Engine) PendingText() string {
	pending := e.store.Pending()
	if len(pending) == 0 {
		return "⏳ Нет сигналов, ожидающих подтверждения"
	}
	now := e.now()
	var b strings.Builder
	fmt.Fprintf(&b, "*⏳ Ожидают подтверждения (%d)*\n", len(pending))
	for _, p := range pending {
		left := p.ExpiresAt(e.cfg.ConfirmationTimeout).Sub(now).Round(time.Second)
		fmt.Fprintf(&b, "\n`%s` `%s` по `%s`, осталось `%s`", p.ID, p.Symbol, px(p.Signal.Price), left)
	}
	return b.String()
}

func (e *Engine) HistoryText(n int) string {
	h := e.store.History(n)
	if len(h) == 0 {
		return "📜 История пуста"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*📜 Последние %d операций*\n", len(h))
	for _, x := range h {
		fmt.Fprintf(&b, "\n%s `%s` `%s` `%s` по `%s`",
			x.Timestamp.Format("01-02 15:04"), x.Action, x.Symbol, px(x.Quantity), px(x.Price))
		if x.Action != models.HistoryOpenLong {
			fmt.Fprintf(&b, " %s%%", signed(x.PnLPercent))
		}
	}
	return b.String()
}

func FormatRiskReport(r models.RiskReport) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"*🛡 Риски*\n\n"+
			"Баланс: `%s` (начало дня `%s`, %s%%)\n"+
			"Позиции: `%d/%d` (%s%%)\n"+
			"Дневная просадка: `%s%%` из `%s%%`\n"+
			"Сделок за день: `%d`, PnL `%s`\n",
		f2(r.BalanceCurrent), f2(r.BalanceStart), signed(r.BalanceChangePercent),
		r.PositionCount, r.MaxPositions, f2(r.PositionUtilPct),
		f2(r.CurrentLossPct), f2(r.MaxDailyLossPct),
		r.DailyTradeCount, signed(r.DailyCumulativePnL),
	)
	if len(r.Recommendations) > 0 {
		b.WriteString("\n*Рекомендации*\n")
		for _, rec := range r.Recommendations {
			b.WriteString("• `" + rec + "`\n")
		}
	}
	return b.String()
}
