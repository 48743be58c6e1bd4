package models

import "time"

type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

type PositionStatus string

const (
	PositionActive PositionStatus = "ACTIVE"
	PositionClosed PositionStatus = "CLOSED"
)

// TakeProfitLevel — цель частичной фиксации, считается один раз при входе.
type TakeProfitLevel struct {
	Level           int     `json:"level"`
	Price           float64 `json:"price"`
	ClosePercentage float64 `json:"closePercentage"`
}

type PartialClose struct {
	Level      int       `json:"level"`
	Percentage float64   `json:"percentage"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	PnLPercent float64   `json:"pnlPercent"`
	Received   float64   `json:"received"`
	OrderID    string    `json:"orderId"`
	Estimated  bool      `json:"estimated,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Position — открытая позиция по одному инструменту.
type Position struct {
	Symbol         string       `json:"symbol"`
	OriginalSymbol string       `json:"originalSymbol"`
	Side           PositionSide `json:"side"`

	EntryPrice        float64 `json:"entryPrice"`
	Quantity          float64 `json:"quantity"`
	RemainingQuantity float64 `json:"remainingQuantity"`
	Notional          float64 `json:"notional"`
	OrderID           string  `json:"orderId"`
	FillEstimated     bool    `json:"fillEstimated,omitempty"`

	TakeProfitLevels []TakeProfitLevel `json:"takeProfitLevels"`
	StopLossPrice    float64           `json:"stopLossPrice"`
	PartialCloses    []PartialClose    `json:"partialCloses"`

	Status   PositionStatus `json:"status"`
	OpenTime time.Time      `json:"openTime"`
	Signal   Signal         `json:"signal"`

	ExitPrice       float64   `json:"exitPrice,omitempty"`
	ExitTime        time.Time `json:"exitTime,omitempty"`
	CloseReason     string    `json:"closeReason,omitempty"`
	TotalPnLPercent float64   `json:"totalPnLPercent,omitempty"`
}

func (p *Position) IsOpen() bool {
	return p.Status == PositionActive && p.RemainingQuantity > 0
}

// HasPartialClose сообщает, фиксировался ли уже уровень TP.
func (p *Position) HasPartialClose(level int) bool {
	for _, pc := range p.PartialCloses {
		if pc.Level == level {
			return true
		}
	}
	return false
}

// PnLPercent — доходность в процентах от цены входа с учётом направления.
func (p *Position) PnLPercent(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pnl := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == SideShort {
		return -pnl
	}
	return pnl
}

// Clone returns a deep copy safe to hand out of the store.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.TakeProfitLevels = append([]TakeProfitLevel(nil), p.TakeProfitLevels...)
	c.PartialCloses = append([]PartialClose(nil), p.PartialCloses...)
	return &c
}
