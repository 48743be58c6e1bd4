package models

type Market struct {
	Name          string  `json:"name"`
	Stock         string  `json:"stock"`
	Money         string  `json:"money"`
	MinAmount     float64 `json:"minAmount"`
	MinTotal      float64 `json:"minTotal"`
	MaxTotal      float64 `json:"maxTotal"`
	MakerFee      float64 `json:"makerFee"`
	TakerFee      float64 `json:"takerFee"`
	StockPrec     int     `json:"stockPrec"`
	MoneyPrec     int     `json:"moneyPrec"`
	TradesEnabled bool    `json:"tradesEnabled"`
}

type MarketLimits struct {
	MinAmount float64
	MinTotal  float64
	MaxTotal  float64
	MakerFee  float64
	TakerFee  float64
	StockPrec int
	MoneyPrec int
}

func (m Market) Limits() MarketLimits {
	return MarketLimits{
		MinAmount: m.MinAmount,
		MinTotal:  m.MinTotal,
		MaxTotal:  m.MaxTotal,
		MakerFee:  m.MakerFee,
		TakerFee:  m.TakerFee,
		StockPrec: m.StockPrec,
		MoneyPrec: m.MoneyPrec,
	}
}

type Ticker struct {
	Symbol string
	Last   float64
	Volume float64
	Change float64
}

// Balance is the normalized per-currency balance.
type Balance struct {
	Currency  string
	Available float64
	Freeze    float64
}
