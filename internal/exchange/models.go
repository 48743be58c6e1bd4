package exchange

import (
	"bytes"
	"strconv"
)

// number — биржа отдаёт числа то строкой, то числом.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = number(v)
	return nil
}

// text — строка, которая может прийти числом (orderId).
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "null" {
		s = ""
	}
	*t = text(s)
	return nil
}

type marketDTO struct {
	Name          string `json:"name"`
	Stock         string `json:"stock"`
	Money         string `json:"money"`
	StockPrec     number `json:"stockPrec"`
	MoneyPrec     number `json:"moneyPrec"`
	MakerFee      number `json:"makerFee"`
	TakerFee      number `json:"takerFee"`
	MinAmount     number `json:"minAmount"`
	MinTotal      number `json:"minTotal"`
	MaxTotal      number `json:"maxTotal"`
	TradesEnabled bool   `json:"tradesEnabled"`
}

type tickerDTO struct {
	LastPrice   number `json:"last_price"`
	BaseVolume  number `json:"base_volume"`
	QuoteVolume number `json:"quote_volume"`
	Change      number `json:"change"`
	IsFrozen    bool   `json:"isFrozen"`
}

type balanceDTO struct {
	Available number `json:"available"`
	Freeze    number `json:"freeze"`
}

type orderDTO struct {
	OrderID   text   `json:"orderId"`
	Status    string `json:"status"`
	Market    string `json:"market"`
	Side      string `json:"side"`
	DealMoney number `json:"dealMoney"`
	DealStock number `json:"dealStock"`
	Left      number `json:"left"`
}

type errorDTO struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

type timeDTO struct {
	Time int64 `json:"time"`
}

// APIStats — счётчики обращений к API.
type APIStats struct {
	Requests    int64
	Errors      int64
	LastRequest int64 // unix ms
}

func (s APIStats) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Requests) * 100
}
