package models

import "time"

type TradeStats struct {
	TotalTrades int     `json:"totalTrades"`
	Profitable  int     `json:"profitable"`
	Losing      int     `json:"losing"`
	TotalPnL    float64 `json:"totalPnL"`
}

func (s TradeStats) WinRate() float64 {
	closed := s.Profitable + s.Losing
	if closed == 0 {
		return 0
	}
	return float64(s.Profitable) / float64(closed) * 100
}

func (s TradeStats) AveragePnL() float64 {
	closed := s.Profitable + s.Losing
	if closed == 0 {
		return 0
	}
	return s.TotalPnL / float64(closed)
}

// Snapshot — точка восстановления состояния движка.
type Snapshot struct {
	ActivePositions []Position          `json:"activePositions"`
	PendingSignals  []PendingSignal     `json:"pendingSignals"`
	OrderHistory    []OrderHistoryEntry `json:"orderHistory"`
	Stats           TradeStats          `json:"stats"`
	Timestamp       time.Time           `json:"timestamp"`
}
