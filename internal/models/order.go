package models

import "time"

type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderResult — ответ биржи на рыночный ордер. DealMoney/DealStock могут быть нулевыми.
type OrderResult struct {
	OrderID   string
	Status    string
	DealMoney float64
	DealStock float64
}

// FillPrice returns the average fill price if the exchange reported deal totals.
func (o OrderResult) FillPrice() (float64, bool) {
	if o.DealMoney > 0 && o.DealStock > 0 {
		return o.DealMoney / o.DealStock, true
	}
	return 0, false
}

type HistoryAction string

const (
	HistoryOpenLong     HistoryAction = "OPEN_LONG"
	HistoryPartialClose HistoryAction = "PARTIAL_CLOSE"
	HistoryClose        HistoryAction = "CLOSE_POSITION"
)

// OrderHistoryEntry — запись аудита, после добавления не меняется.
type OrderHistoryEntry struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	Action         HistoryAction `json:"action"`
	Symbol         string        `json:"symbol"`
	OriginalSymbol string        `json:"originalSymbol"`
	Level          int           `json:"level,omitempty"`
	Percentage     float64       `json:"percentage,omitempty"`
	Price          float64       `json:"price"`
	EntryPrice     float64       `json:"entryPrice,omitempty"`
	Quantity       float64       `json:"quantity"`
	Notional       float64       `json:"notional,omitempty"`
	PnLPercent     float64       `json:"pnlPercent,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	OrderID        string        `json:"orderId"`
	Estimated      bool          `json:"estimated,omitempty"`
}
