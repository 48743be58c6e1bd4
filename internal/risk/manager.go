package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
)

// Exchange — то, что риск-менеджеру нужно от биржи: только чтение.
type Exchange interface {
	GetCurrencyBalance(ctx context.Context, currency string) (float64, error)
	GetMarketLimits(ctx context.Context, symbol string) (models.MarketLimits, error)
	IsMarketActive(ctx context.Context, symbol string) (bool, error)
}

type Manager struct {
	cfg config.TradingConfig
	ex  Exchange
	log *zap.Logger
	now func() time.Time

	mu    sync.Mutex
	daily models.DailyRiskStats
}

func NewManager(cfg config.TradingConfig, ex Exchange, log *zap.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		ex:  ex,
		log: log.Named("risk"),
		now: time.Now,
	}
}

func (m *Manager) Config() config.TradingConfig { return m.cfg }

// CalculatePositionSize возвращает сумму ордера в валюте котировки.
// При недоступном балансе откатывается к минимальному размеру ордера,
// лимит на количество позиций проверяется в любом случае.
func (m *Manager) CalculatePositionSize(ctx context.Context, symbol string, price float64, openCount int) (float64, error) {
	balance, err := m.ex.GetCurrencyBalance(ctx, m.cfg.QuoteCurrency)
	if err != nil {
		if openCount >= m.cfg.MaxOpenPositions {
			return 0, fmt.Errorf("%w: %d of %d", models.ErrLimitExceeded, openCount, m.cfg.MaxOpenPositions)
		}
		m.log.Warn("balance unavailable, falling back to min order size",
			zap.String("symbol", symbol), zap.Float64("size", m.cfg.MinOrderSize), zap.Error(err))
		return m.cfg.MinOrderSize, nil
	}

	amount := balance * m.cfg.RiskPercent / 100
	amount = math.Max(amount, m.cfg.MinOrderSize)
	amount = math.Min(amount, m.cfg.MaxOrderSize)

	amount, err = m.ApplyRiskLimits(amount, balance, openCount)
	if err != nil {
		return 0, err
	}

	limits, err := m.ex.GetMarketLimits(ctx, symbol)
	if err != nil {
		m.log.Warn("market limits unavailable, skipping min total adjustment",
			zap.String("symbol", symbol), zap.Error(err))
	} else if limits.MinTotal > 0 && amount < limits.MinTotal {
		if limits.MinTotal > balance {
			return 0, fmt.Errorf("%w: market min total %.8g above balance %.2f", models.ErrRiskLimit, limits.MinTotal, balance)
		}
		if limit := balance * m.positionShare() / 100; limits.MinTotal > limit {
			m.log.Warn("market min total exceeds position share limit",
				zap.String("symbol", symbol), zap.Float64("min_total", limits.MinTotal), zap.Float64("limit", limit))
		} else {
			m.log.Info("size raised to market min total",
				zap.String("symbol", symbol), zap.Float64("from", amount), zap.Float64("to", limits.MinTotal))
		}
		amount = limits.MinTotal
	}

	if amount <= 0 {
		return 0, fmt.Errorf("%w: non-positive size %.8f for balance %.2f", models.ErrRiskLimit, amount, balance)
	}

	m.log.Info("position size",
		zap.String("symbol", symbol),
		zap.Float64("balance", balance),
		zap.Float64("price", price),
		zap.Float64("amount", amount))
	return amount, nil
}

// ApplyRiskLimits применяет лимиты счёта к запрошенной сумме.
func (m *Manager) ApplyRiskLimits(amount, balance float64, openCount int) (float64, error) {
	if openCount >= m.cfg.MaxOpenPositions {
		return 0, fmt.Errorf("%w: %d of %d", models.ErrLimitExceeded, openCount, m.cfg.MaxOpenPositions)
	}

	loss := m.currentLossPercent(balance)
	if loss >= m.cfg.MaxDailyLoss {
		return 0, fmt.Errorf("%w: %.2f%% of %.2f%%", models.ErrDailyLossExceeded, loss, m.cfg.MaxDailyLoss)
	}

	if loss >= m.cfg.MaxDailyLoss/2 {
		amount *= 0.5
		m.log.Warn("size halved, daily drawdown in de-risking band",
			zap.Float64("loss_pct", loss), zap.Float64("amount", amount))
	}

	if limit := balance * m.positionShare() / 100; amount > limit {
		amount = limit
	}
	return amount, nil
}

// positionShare — доля из конфига, но не больше MaxPositionShareCap.
func (m *Manager) positionShare() float64 {
	share := m.cfg.MaxPositionShare
	if share <= 0 || share > config.MaxPositionShareCap {
		return config.MaxPositionShareCap
	}
	return share
}

// CanOpenPosition не возвращает ошибок: любой сбой превращается в отказ.
func (m *Manager) CanOpenPosition(ctx context.Context, symbol string, price float64, openCount int) models.Decision {
	active, err := m.ex.IsMarketActive(ctx, symbol)
	if err != nil {
		return models.Decision{Reason: fmt.Sprintf("market %s status unavailable: %v", symbol, err)}
	}
	if !active {
		return models.Decision{Reason: fmt.Sprintf("market %s is not tradable", symbol)}
	}

	if openCount >= m.cfg.MaxOpenPositions {
		return models.Decision{Reason: fmt.Sprintf("max open positions reached: %d", m.cfg.MaxOpenPositions)}
	}

	balance, err := m.ex.GetCurrencyBalance(ctx, m.cfg.QuoteCurrency)
	if err != nil {
		return models.Decision{Reason: fmt.Sprintf("balance unavailable: %v", err)}
	}

	if loss := m.currentLossPercent(balance); loss >= m.cfg.MaxDailyLoss {
		return models.Decision{Reason: fmt.Sprintf("daily loss limit reached: %.2f%%", loss)}
	}

	if balance < m.cfg.MinBalance {
		return models.Decision{Reason: fmt.Sprintf("balance %.2f %s below minimum %.2f", balance, m.cfg.QuoteCurrency, m.cfg.MinBalance)}
	}

	return models.Decision{Allowed: true}
}
