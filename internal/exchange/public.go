package exchange

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/models"
)

func (c *Client) Ping(ctx context.Context) error {
	return c.publicRequest(ctx, "/ping", nil)
}

func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var t timeDTO
	if err := c.publicRequest(ctx, "/time", &t); err != nil {
		return time.Time{}, err
	}
	return time.Unix(t.Time, 0), nil
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	var all map[string]tickerDTO
	if err := c.publicRequest(ctx, "/ticker", &all); err != nil {
		return models.Ticker{}, err
	}

	t, ok := all[symbol]
	if !ok {
		return models.Ticker{}, fmt.Errorf("%w: ticker %s not found", models.ErrExchange, symbol)
	}
	if t.LastPrice <= 0 {
		return models.Ticker{}, fmt.Errorf("%w: ticker %s has no last price", models.ErrExchange, symbol)
	}
	return models.Ticker{
		Symbol: symbol,
		Last:   float64(t.LastPrice),
		Volume: float64(t.BaseVolume),
		Change: float64(t.Change),
	}, nil
}

// GetMarkets отдаёт список рынков из кэша, обновляя его раз в marketsTTL.
func (c *Client) GetMarkets(ctx context.Context) ([]models.Market, error) {
	m, err := c.marketIndex(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Market, 0, len(m))
	for _, mk := range m {
		out = append(out, mk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) marketIndex(ctx context.Context) (map[string]models.Market, error) {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.markets != nil && c.marketsTTL > 0 && time.Since(c.marketsAt) < c.marketsTTL {
		return c.markets, nil
	}

	var list []marketDTO
	if err := c.publicRequest(ctx, "/markets", &list); err != nil {
		if c.markets != nil {
			c.log.Warn("markets refresh failed, serving stale cache", zap.Error(err))
			return c.markets, nil
		}
		return nil, err
	}

	idx := make(map[string]models.Market, len(list))
	for _, d := range list {
		idx[d.Name] = models.Market{
			Name:          d.Name,
			Stock:         d.Stock,
			Money:         d.Money,
			MinAmount:     float64(d.MinAmount),
			MinTotal:      float64(d.MinTotal),
			MaxTotal:      float64(d.MaxTotal),
			MakerFee:      float64(d.MakerFee),
			TakerFee:      float64(d.TakerFee),
			StockPrec:     int(d.StockPrec),
			MoneyPrec:     int(d.MoneyPrec),
			TradesEnabled: d.TradesEnabled,
		}
	}
	c.markets = idx
	c.marketsAt = time.Now()
	return idx, nil
}

func (c *Client) GetMarketLimits(ctx context.Context, symbol string) (models.MarketLimits, error) {
	idx, err := c.marketIndex(ctx)
	if err != nil {
		return models.MarketLimits{}, err
	}
	mk, ok := idx[symbol]
	if !ok {
		return models.MarketLimits{}, fmt.Errorf("market %s not found", symbol)
	}
	return mk.Limits(), nil
}

// IsMarketActive: неизвестный рынок — не активен, без ошибки.
func (c *Client) IsMarketActive(ctx context.Context, symbol string) (bool, error) {
	idx, err := c.marketIndex(ctx)
	if err != nil {
		return false, err
	}
	mk, ok := idx[symbol]
	return ok && mk.TradesEnabled, nil
}
