package models

import "time"

// DailyRiskStats сбрасывается при смене локального дня.
type DailyRiskStats struct {
	Day             string  `json:"day"`
	DayStartBalance float64 `json:"dayStartBalance"`
	CumulativePnL   float64 `json:"cumulativePnL"`
	TradeCount      int     `json:"tradeCount"`
}

type Decision struct {
	Allowed bool
	Reason  string
}

type CloseKind string

const (
	CloseStopLoss CloseKind = "STOP_LOSS"
	CloseMaxLoss  CloseKind = "MAX_LOSS"
)

type CloseDecision struct {
	ShouldClose bool
	Reason      string
	Kind        CloseKind
	PnLPercent  float64
}

type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// PositionAdvice — справочная оценка позиции для лога мониторинга.
type PositionAdvice struct {
	Action    string
	RiskLevel RiskLevel
	Reasons   []string
}

type RiskReport struct {
	GeneratedAt time.Time `json:"generatedAt"`

	BalanceCurrent       float64 `json:"balanceCurrent"`
	BalanceStart         float64 `json:"balanceStart"`
	BalanceChange        float64 `json:"balanceChange"`
	BalanceChangePercent float64 `json:"balanceChangePercent"`

	PositionCount      int     `json:"positionCount"`
	MaxPositions       int     `json:"maxPositions"`
	PositionUtilPct    float64 `json:"positionUtilPct"`
	MaxDailyLossPct    float64 `json:"maxDailyLossPct"`
	CurrentLossPct     float64 `json:"currentLossPct"`
	DailyLossUtilPct   float64 `json:"dailyLossUtilPct"`
	DailyTradeCount    int     `json:"dailyTradeCount"`
	DailyCumulativePnL float64 `json:"dailyCumulativePnL"`

	Recommendations []string `json:"recommendations"`
}
