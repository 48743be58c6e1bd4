package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"signal_bot/internal/models"
)

const (
	pathBalance     = "/api/v4/trade-account/balance"
	pathMarketOrder = "/api/v4/order/market"
)

// GetBalance — торговый баланс по всем валютам.
func (c *Client) GetBalance(ctx context.Context) (map[string]models.Balance, error) {
	var raw map[string]balanceDTO
	if err := c.privateRequest(ctx, pathBalance, nil, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]models.Balance, len(raw))
	for ccy, b := range raw {
		ccy = strings.ToUpper(ccy)
		out[ccy] = models.Balance{
			Currency:  ccy,
			Available: float64(b.Available),
			Freeze:    float64(b.Freeze),
		}
	}
	return out, nil
}

// GetCurrencyBalance returns the available amount; a missing currency is zero.
func (c *Client) GetCurrencyBalance(ctx context.Context, currency string) (float64, error) {
	var raw map[string]balanceDTO
	params := map[string]any{"ticker": strings.ToUpper(currency)}
	if err := c.privateRequest(ctx, pathBalance, params, &raw); err != nil {
		return 0, err
	}
	for ccy, b := range raw {
		if strings.EqualFold(ccy, currency) {
			return float64(b.Available), nil
		}
	}
	return 0, nil
}

// CreateMarketBuyOrder: amount — сумма в валюте котировки.
func (c *Client) CreateMarketBuyOrder(ctx context.Context, symbol string, notional float64) (models.OrderResult, error) {
	return c.marketOrder(ctx, symbol, models.OrderBuy, notional)
}

// CreateMarketSellOrder: amount — количество базовой валюты.
func (c *Client) CreateMarketSellOrder(ctx context.Context, symbol string, quantity float64) (models.OrderResult, error) {
	return c.marketOrder(ctx, symbol, models.OrderSell, quantity)
}

func (c *Client) marketOrder(ctx context.Context, symbol string, side models.OrderSide, amount float64) (models.OrderResult, error) {
	if amount <= 0 {
		return models.OrderResult{}, fmt.Errorf("%w: %s amount must be positive", models.ErrValidation, side)
	}

	params := map[string]any{
		"market": symbol,
		"side":   string(side),
		"amount": strconv.FormatFloat(amount, 'f', -1, 64),
	}

	c.log.Info("market order request",
		zap.String("symbol", symbol), zap.String("side", string(side)), zap.Float64("amount", amount))

	var o orderDTO
	if err := c.privateRequest(ctx, pathMarketOrder, params, &o); err != nil {
		return models.OrderResult{}, err
	}

	res := models.OrderResult{
		OrderID:   string(o.OrderID),
		Status:    o.Status,
		DealMoney: float64(o.DealMoney),
		DealStock: float64(o.DealStock),
	}
	c.log.Info("market order filled",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("order_id", res.OrderID),
		zap.Float64("deal_money", res.DealMoney),
		zap.Float64("deal_stock", res.DealStock))
	return res, nil
}
