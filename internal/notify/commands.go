package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/backup"
	"signal_bot/internal/engine"
	"signal_bot/internal/exchange"
	"signal_bot/internal/models"
)

const (
	defaultHistory = 10
	maxHistory     = 50
	maxMarkets     = 20
)

// Engine — операции движка, доступные оператору из чата.
type Engine interface {
	Confirm(ctx context.Context, id string) (*models.Position, error)
	Reject(ctx context.Context, id string) error
	CloseAll(ctx context.Context, reason string) []engine.CloseResult
	MonitorPositions(ctx context.Context) engine.MonitorReport
	CleanupPending(ctx context.Context) int
	RiskReport(ctx context.Context) (models.RiskReport, error)
	Price(ctx context.Context, ticker string) (string, float64, error)
	StatusText() string
	StatsText() string
	PendingText() string
	HistoryText(n int) string
}

type MarketLister interface {
	GetMarkets(ctx context.Context) ([]models.Market, error)
}

type APIStatser interface {
	Stats() exchange.APIStats
}

type Backuper interface {
	Backup(ctx context.Context) (backup.Result, error)
}

// Handlers — зависимости команд. Nil-поля отключают соответствующие команды.
type Handlers struct {
	Engine  Engine
	Markets MarketLister
	API     APIStatser
	Backup  Backuper
	// Config возвращает конфигурацию с замазанными секретами.
	Config func() (string, error)
	Quote  string
}

const helpText = "*🤖 Команды*\n\n" +
	"/status — позиции и статистика\n" +
	"/pending — сигналы, ожидающие подтверждения\n" +
	"/closeall — закрыть все позиции\n" +
	"/risk — риск-отчёт\n" +
	"/history [n] — последние операции\n" +
	"/stats — статистика сделок\n" +
	"/price <тикер> — текущая цена\n" +
	"/markets — доступные рынки\n" +
	"/monitor — проверить позиции сейчас\n" +
	"/cleanup — снять просроченные сигналы\n" +
	"/backup — сохранить снимок состояния\n" +
	"/config — текущая конфигурация"

func (t *Telegram) handleCommand(ctx context.Context, cmd, args string) string {
	t.log.Info("command", zap.String("cmd", cmd), zap.String("args", args))

	switch cmd {
	case "start", "help":
		return helpText
	}

	h := t.handlers()
	if h.Engine == nil {
		return "⏳ Бот ещё запускается, попробуйте позже"
	}

	switch cmd {
	case "status":
		return h.Engine.StatusText() + apiStatsText(h.API)
	case "pending":
		return h.Engine.PendingText()
	case "stats":
		return h.Engine.StatsText()
	case "history":
		return h.Engine.HistoryText(historyLimit(args))
	case "risk":
		r, err := h.Engine.RiskReport(ctx)
		if err != nil {
			return "❌ Риск-отчёт недоступен: " + err.Error()
		}
		return engine.FormatRiskReport(r)
	case "closeall":
		return closeAllText(h.Engine.CloseAll(ctx, "Manual close all"))
	case "price":
		return priceText(ctx, h.Engine, args)
	case "monitor":
		r := h.Engine.MonitorPositions(ctx)
		return fmt.Sprintf("*🔍 Мониторинг*\n\nПроверено: %d\nЗакрыто: %d\nЧастично: %d\nОшибок: %d",
			r.Checked, r.Closed, r.Partial, r.Failed)
	case "cleanup":
		return fmt.Sprintf("🧹 Снято просроченных сигналов: %d", h.Engine.CleanupPending(ctx))
	case "markets":
		return marketsText(ctx, h.Markets, h.Quote)
	case "backup":
		if h.Backup == nil {
			return "ℹ️ Бэкап не настроен"
		}
		res, err := h.Backup.Backup(ctx)
		if err != nil {
			return "❌ Ошибка бэкапа: " + err.Error()
		}
		return "💾 " + res.String()
	case "config":
		if h.Config == nil {
			return "ℹ️ Конфигурация недоступна"
		}
		dump, err := h.Config()
		if err != nil {
			return "❌ " + err.Error()
		}
		return "*⚙️ Конфигурация*\n```\n" + dump + "```"
	}
	return "❓ Неизвестная команда. Используйте /help для списка доступных команд."
}

func historyLimit(args string) int {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n <= 0 {
		return defaultHistory
	}
	return min(n, maxHistory)
}

func apiStatsText(api APIStatser) string {
	if api == nil {
		return ""
	}
	s := api.Stats()
	last := "—"
	if s.LastRequest > 0 {
		last = time.UnixMilli(s.LastRequest).Format("15:04:05")
	}
	return fmt.Sprintf("\n\n*🌐 API биржи*\nЗапросов: %d\nОшибок: %d (%.1f%%)\nПоследний: %s",
		s.Requests, s.Errors, s.ErrorRate(), last)
}

func closeAllText(results []engine.CloseResult) string {
	if len(results) == 0 {
		return "📭 Открытых позиций нет"
	}
	var b strings.Builder
	b.WriteString("*🛑 Закрытие всех позиций*\n\n")
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "❌ `%s`: %v\n", r.Symbol, r.Err)
		case r.Position == nil:
			fmt.Fprintf(&b, "➖ `%s`: уже закрыта\n", r.Symbol)
		default:
			fmt.Fprintf(&b, "✅ `%s`: %+.2f%%\n", r.Symbol, r.Position.TotalPnLPercent)
		}
	}
	return b.String()
}

func priceText(ctx context.Context, e Engine, args string) string {
	ticker := strings.TrimSpace(args)
	if ticker == "" {
		return "Использование: /price <тикер>, например /price BTCUSDT"
	}
	symbol, price, err := e.Price(ctx, ticker)
	if err != nil {
		return fmt.Sprintf("❌ Цена `%s` недоступна: %v", ticker, err)
	}
	return fmt.Sprintf("💵 `%s`: `%s`", symbol, strconv.FormatFloat(price, 'f', -1, 64))
}

func marketsText(ctx context.Context, ml MarketLister, quote string) string {
	if ml == nil {
		return "ℹ️ Список рынков недоступен"
	}
	markets, err := ml.GetMarkets(ctx)
	if err != nil {
		return "❌ Ошибка получения рынков: " + err.Error()
	}

	var matched []models.Market
	for _, m := range markets {
		if quote == "" || strings.EqualFold(m.Money, quote) {
			matched = append(matched, m)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*🏪 Рынки %s*\n\n", quote)
	for i, m := range matched {
		if i == maxMarkets {
			fmt.Fprintf(&b, "… и ещё %d\n", len(matched)-maxMarkets)
			break
		}
		trade := "✅"
		if !m.TradesEnabled {
			trade = "❌"
		}
		fmt.Fprintf(&b, "%s `%s` мин. %s / %s\n", trade, m.Name,
			strconv.FormatFloat(m.MinAmount, 'f', -1, 64), strconv.FormatFloat(m.MinTotal, 'f', -1, 64))
	}
	fmt.Fprintf(&b, "\nВсего рынков: %d, с котировкой %s: %d", len(markets), quote, len(matched))
	return b.String()
}
