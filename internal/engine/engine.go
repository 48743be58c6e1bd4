package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/risk"
	"signal_bot/internal/store"
	"signal_bot/internal/symbols"
)

const (
	quantityPlaces = 8

	defaultOrderTimeout = 30 * time.Second
)

// Exchange — торговые вызовы биржи, которые нужны движку.
type Exchange interface {
	CreateMarketBuyOrder(ctx context.Context, symbol string, notional float64) (models.OrderResult, error)
	CreateMarketSellOrder(ctx context.Context, symbol string, quantity float64) (models.OrderResult, error)
}

type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Notifier — канал до оператора. Ответ на Ask приходит асинхронно через Confirm/Reject.
type Notifier interface {
	Send(ctx context.Context, text string) error
	Ask(ctx context.Context, text string, choices []models.Choice) error
}

// Watcher подписывает фид цен на символы открытых позиций.
type Watcher interface {
	Watch(symbols ...string)
	Unwatch(symbol string)
}

type Metrics interface {
	SignalReceived(action string)
	SignalRejected(kind string)
	OrderPlaced(side string, err error)
	PositionClosed(reason string, pnlPercent float64)
	OpenPositions(n int)
	PendingSignals(n int)
}

type Config struct {
	StrategyName        string
	ConfirmationTimeout time.Duration
	StopLossPercent     float64
	// OrderTimeout ограничивает ордер и учёт его результата, отмена вызывающего на них не влияет.
	OrderTimeout time.Duration
}

type Deps struct {
	Config   Config
	Risk     *risk.Manager
	Exchange Exchange
	Prices   PriceSource
	Notifier Notifier
	Store    *store.Store
	Mapper   *symbols.Mapper
	Logger   *zap.Logger
	Metrics  Metrics
	Watcher  Watcher
	NodeID   int64
}

type Engine struct {
	cfg     Config
	risk    *risk.Manager
	ex      Exchange
	prices  PriceSource
	notify  Notifier
	store   *store.Store
	mapper  *symbols.Mapper
	log     *zap.Logger
	metrics Metrics
	watcher Watcher

	ids   *snowflake.Node
	locks *keyedMutex
	now   func() time.Time

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	faultOnce sync.Once
	onFault   func(err error)
}

func New(d Deps) (*Engine, error) {
	if d.Risk == nil || d.Exchange == nil || d.Prices == nil || d.Notifier == nil || d.Store == nil || d.Mapper == nil {
		return nil, fmt.Errorf("engine: missing dependency")
	}
	if d.Config.ConfirmationTimeout <= 0 {
		return nil, fmt.Errorf("engine: confirmation timeout must be positive")
	}

	if d.Config.OrderTimeout <= 0 {
		d.Config.OrderTimeout = defaultOrderTimeout
	}

	node, err := snowflake.NewNode(d.NodeID)
	if err != nil {
		return nil, fmt.Errorf("engine: snowflake node: %w", err)
	}

	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := d.Metrics
	if m == nil {
		m = nopMetrics{}
	}

	return &Engine{
		cfg:     d.Config,
		risk:    d.Risk,
		ex:      d.Exchange,
		prices:  d.Prices,
		notify:  d.Notifier,
		store:   d.Store,
		mapper:  d.Mapper,
		log:     log.Named("engine"),
		metrics: m,
		watcher: d.Watcher,
		ids:     node,
		locks:   newKeyedMutex(),
		now:     time.Now,
		timers:  make(map[string]*time.Timer),
	}, nil
}

// OnFault задаёт реакцию на непредвиденный сбой (panic). Вызывается один раз.
func (e *Engine) OnFault(fn func(err error)) { e.onFault = fn }

// guard превращает panic в ошибку и сообщает о сбое.
func (e *Engine) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: unexpected fault: %v", op, r)
			e.log.Error("unexpected fault", zap.String("op", op), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			e.faultOnce.Do(func() {
				if e.onFault != nil {
					e.onFault(err)
				}
			})
		}
	}()
	return fn()
}

// orderContext отвязан от отмены ctx: исполненный биржей ордер должен попасть в состояние.
func (e *Engine) orderContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OrderTimeout)
}

func (e *Engine) send(ctx context.Context, text string) {
	if err := e.notify.Send(ctx, text); err != nil {
		e.log.Warn("notify failed", zap.Error(err))
	}
}

func (e *Engine) syncGauges() {
	e.metrics.OpenPositions(e.store.PositionCount())
	e.metrics.PendingSignals(e.store.PendingCount())
}

func (e *Engine) Positions() []*models.Position            { return e.store.Positions() }
func (e *Engine) Pending() []models.PendingSignal          { return e.store.Pending() }
func (e *Engine) History(n int) []models.OrderHistoryEntry { return e.store.History(n) }
func (e *Engine) Stats() models.TradeStats                 { return e.store.Stats() }

func (e *Engine) RiskReport(ctx context.Context) (models.RiskReport, error) {
	return e.risk.GetRiskReport(ctx, e.store.PositionCount())
}

// Price resolves a signal ticker and returns its last price.
func (e *Engine) Price(ctx context.Context, ticker string) (string, float64, error) {
	symbol := e.mapper.Resolve(ticker)
	if symbol == "" {
		return "", 0, fmt.Errorf("%w: empty ticker", models.ErrValidation)
	}
	px, err := e.prices.LastPrice(ctx, symbol)
	return symbol, px, err
}

type nopMetrics struct{}

func (nopMetrics) SignalReceived(string)          {}
func (nopMetrics) SignalRejected(string)          {}
func (nopMetrics) OrderPlaced(string, error)      {}
func (nopMetrics) PositionClosed(string, float64) {}
func (nopMetrics) OpenPositions(int)              {}
func (nopMetrics) PendingSignals(int)             {}
