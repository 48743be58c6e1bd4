package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signal_bot/internal/models"
)

const (
	feedPingEvery  = 30 * time.Second
	feedReadWait   = 90 * time.Second
	feedMaxBackoff = 30 * time.Second
)

type TickerSource interface {
	GetTicker(ctx context.Context, symbol string) (models.Ticker, error)
}

type pricePoint struct {
	price float64
	at    time.Time
}

// PriceFeed держит последние цены из WS-канала lastprice и
// при устаревшей цене идёт в REST тикер.
type PriceFeed struct {
	url      string
	dialer   *websocket.Dialer
	fallback TickerSource
	maxAge   time.Duration
	log      *zap.Logger

	onState func(connected bool)
	onTick  func(t time.Time)

	mu     sync.RWMutex
	prices map[string]pricePoint

	subMu   sync.Mutex
	symbols map[string]struct{}
	resub   chan struct{}
}

func NewPriceFeed(url string, fallback TickerSource, maxAge time.Duration, log *zap.Logger) *PriceFeed {
	return &PriceFeed{
		url:      url,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		fallback: fallback,
		maxAge:   maxAge,
		log:      log.Named("price_feed"),
		prices:   make(map[string]pricePoint),
		symbols:  make(map[string]struct{}),
		resub:    make(chan struct{}, 1),
	}
}

// OnState / OnTick — хуки для health-состояния.
func (f *PriceFeed) OnState(fn func(connected bool)) { f.onState = fn }
func (f *PriceFeed) OnTick(fn func(t time.Time))     { f.onTick = fn }

// Watch добавляет символы в подписку.
func (f *PriceFeed) Watch(symbols ...string) {
	f.subMu.Lock()
	changed := false
	for _, s := range symbols {
		if _, ok := f.symbols[s]; !ok && s != "" {
			f.symbols[s] = struct{}{}
			changed = true
		}
	}
	f.subMu.Unlock()

	if changed {
		f.kick()
	}
}

// Unwatch убирает символ из подписки и кэша.
func (f *PriceFeed) Unwatch(symbol string) {
	f.subMu.Lock()
	_, ok := f.symbols[symbol]
	delete(f.symbols, symbol)
	f.subMu.Unlock()

	f.mu.Lock()
	delete(f.prices, symbol)
	f.mu.Unlock()

	if ok {
		f.kick()
	}
}

func (f *PriceFeed) kick() {
	select {
	case f.resub <- struct{}{}:
	default:
	}
}

func (f *PriceFeed) watched() []string {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	out := make([]string, 0, len(f.symbols))
	for s := range f.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *PriceFeed) set(symbol string, price float64, at time.Time) {
	f.mu.Lock()
	f.prices[symbol] = pricePoint{price: price, at: at}
	f.mu.Unlock()
}

// Cached returns a price younger than maxAge.
func (f *PriceFeed) Cached(symbol string) (float64, bool) {
	f.mu.RLock()
	p, ok := f.prices[symbol]
	f.mu.RUnlock()

	if !ok || p.price <= 0 || time.Since(p.at) > f.maxAge {
		return 0, false
	}
	return p.price, true
}

// LastPrice — цена из WS, иначе из REST тикера.
func (f *PriceFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if px, ok := f.Cached(symbol); ok {
		return px, nil
	}
	if f.fallback == nil {
		return 0, fmt.Errorf("%w: no price for %s", models.ErrExchange, symbol)
	}

	t, err := f.fallback.GetTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	f.set(symbol, t.Last, time.Now())
	return t.Last, nil
}

// Run держит соединение до отмены ctx, переподключаясь с backoff.
func (f *PriceFeed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := f.session(ctx)
		if f.onState != nil {
			f.onState(false)
		}
		if ctx.Err() != nil {
			return
		}
		f.log.Warn("ws session ended, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > feedMaxBackoff {
			backoff = feedMaxBackoff
		}
	}
}

type wsRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type wsMessage struct {
	ID     *int64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *PriceFeed) session(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	if f.onState != nil {
		f.onState(true)
	}
	f.log.Info("ws connected", zap.String("url", f.url))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	var reqID int64
	send := func(method string, params []any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		reqID++
		data, err := sonic.Marshal(wsRequest{ID: reqID, Method: method, Params: params})
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	subscribe := func() error {
		syms := f.watched()
		if len(syms) == 0 {
			return send("lastprice_unsubscribe", []any{})
		}
		params := make([]any, 0, len(syms))
		for _, s := range syms {
			params = append(params, s)
		}
		return send("lastprice_subscribe", params)
	}
	if err := subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		t := time.NewTicker(feedPingEvery)
		defer t.Stop()
		for {
			select {
			case <-sessCtx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				if err := send("ping", []any{}); err != nil {
					f.log.Warn("ws ping failed", zap.Error(err))
					_ = conn.Close()
					return
				}
			case <-f.resub:
				if err := subscribe(); err != nil {
					f.log.Warn("ws resubscribe failed", zap.Error(err))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(feedReadWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.handle(data)
	}
}

func (f *PriceFeed) handle(data []byte) {
	var msg wsMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		f.log.Debug("ws frame skipped", zap.Error(err))
		return
	}
	if msg.Error != nil {
		f.log.Warn("ws error", zap.Int("code", msg.Error.Code), zap.String("message", msg.Error.Message))
		return
	}
	if msg.Method != "lastprice_update" || len(msg.Params) < 2 {
		return
	}

	symbol, _ := msg.Params[0].(string)
	raw, _ := msg.Params[1].(string)
	price, err := strconv.ParseFloat(raw, 64)
	if symbol == "" || err != nil || price <= 0 {
		return
	}

	now := time.Now()
	f.set(symbol, price, now)
	if f.onTick != nil {
		f.onTick(now)
	}
}
