package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
)

type fakeExchange struct {
	balance    float64
	balanceErr error
	limits     models.MarketLimits
	limitsErr  error
	active     bool
	activeErr  error
}

func (f *fakeExchange) GetCurrencyBalance(context.Context, string) (float64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeExchange) GetMarketLimits(context.Context, string) (models.MarketLimits, error) {
	return f.limits, f.limitsErr
}

func (f *fakeExchange) IsMarketActive(context.Context, string) (bool, error) {
	return f.active, f.activeErr
}

func testConfig() config.TradingConfig {
	return config.TradingConfig{
		RiskPercent:         2,
		MinOrderSize:        10,
		MaxOrderSize:        1000,
		MaxOpenPositions:    5,
		MaxDailyLoss:        10,
		MaxLossPerPosition:  5,
		MaxPositionShare:    10,
		MinBalance:          10,
		StopLossPercent:     3,
		TakeProfitOffsets:   []float64{2, 4, 6},
		TakeProfitClosePcts: []float64{25, 25, 25},
		QuoteCurrency:       "USDT",
	}
}

func newTestManager(ex *fakeExchange) *Manager {
	m := NewManager(testConfig(), ex, zap.NewNop())
	m.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local) }
	return m
}

func TestCalculateTakeProfitLevels_Long(t *testing.T) {
	m := newTestManager(&fakeExchange{})

	levels := m.CalculateTakeProfitLevels(100, models.SideLong)

	require.Len(t, levels, 3)
	for i, want := range []float64{102, 104, 106} {
		assert.Equal(t, i+1, levels[i].Level)
		assert.InDelta(t, want, levels[i].Price, 1e-9)
		assert.Equal(t, 25.0, levels[i].ClosePercentage)
	}
}

func TestCalculateTakeProfitLevels_Short(t *testing.T) {
	m := newTestManager(&fakeExchange{})

	levels := m.CalculateTakeProfitLevels(100, models.SideShort)

	require.Len(t, levels, 3)
	assert.InDelta(t, 98, levels[0].Price, 1e-9)
	assert.InDelta(t, 94, levels[2].Price, 1e-9)
}

func TestCalculateStopLoss(t *testing.T) {
	m := newTestManager(&fakeExchange{})

	assert.InDelta(t, 97, m.CalculateStopLoss(100, models.SideLong, 0), 1e-9)
	assert.InDelta(t, 103, m.CalculateStopLoss(100, models.SideShort, 0), 1e-9)
	assert.InDelta(t, 95, m.CalculateStopLoss(100, models.SideLong, 5), 1e-9)
}

func TestApplyRiskLimits(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		balance   float64
		openCount int
		want      float64
		wantErr   error
	}{
		{name: "within limits", amount: 20, balance: 1000, want: 20},
		{name: "capped at ten percent of balance", amount: 500, balance: 1000, want: 100},
		{name: "count at max", amount: 20, balance: 1000, openCount: 5, wantErr: models.ErrLimitExceeded},
		{name: "count above max", amount: 20, balance: 1000, openCount: 7, wantErr: models.ErrLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(&fakeExchange{})

			got, err := m.ApplyRiskLimits(tt.amount, tt.balance, tt.openCount)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, models.ErrRiskLimit)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.LessOrEqual(t, got, 0.10*tt.balance)
		})
	}
}

func TestApplyRiskLimits_ShareNeverAboveTenPercent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionShare = 50
	m := NewManager(cfg, &fakeExchange{}, zap.NewNop())

	got, err := m.ApplyRiskLimits(400, 1000, 0)
	require.NoError(t, err)
	assert.InDelta(t, 100, got, 1e-9)

	cfg.MaxPositionShare = 5
	m = NewManager(cfg, &fakeExchange{}, zap.NewNop())
	got, err = m.ApplyRiskLimits(400, 1000, 0)
	require.NoError(t, err)
	assert.InDelta(t, 50, got, 1e-9)
}

func TestApplyRiskLimits_DailyLoss(t *testing.T) {
	m := newTestManager(&fakeExchange{})

	_, err := m.ApplyRiskLimits(10, 1000, 0)
	require.NoError(t, err)

	_, err = m.ApplyRiskLimits(10, 900, 0)
	require.ErrorIs(t, err, models.ErrDailyLossExceeded)
}

func TestCalculatePositionSize_HalvedInDeRiskingBand(t *testing.T) {
	ex := &fakeExchange{balance: 1000, active: true, limits: models.MarketLimits{MinTotal: 5}}
	m := newTestManager(ex)

	full, err := m.CalculatePositionSize(context.Background(), "DBTC_DUSDT", 100, 0)
	require.NoError(t, err)
	assert.InDelta(t, 20, full, 1e-9)

	ex.balance = 950
	got, err := m.CalculatePositionSize(context.Background(), "DBTC_DUSDT", 100, 0)
	require.NoError(t, err)
	// без демпфирования было бы 2% от 950 = 19
	assert.InDelta(t, 9.5, got, 1e-9)
}

func TestCalculatePositionSize_BumpedToMinTotal(t *testing.T) {
	ex := &fakeExchange{balance: 1000, limits: models.MarketLimits{MinTotal: 50}}
	m := newTestManager(ex)

	got, err := m.CalculatePositionSize(context.Background(), "DBTC_DUSDT", 100, 0)
	require.NoError(t, err)
	assert.InDelta(t, 50, got, 1e-9)
}

func TestCalculatePositionSize_MinTotalAboveBalance(t *testing.T) {
	ex := &fakeExchange{balance: 40, limits: models.MarketLimits{MinTotal: 50}}
	m := newTestManager(ex)

	_, err := m.CalculatePositionSize(context.Background(), "DBTC_DUSDT", 100, 0)
	assert.ErrorIs(t, err, models.ErrRiskLimit)
}

func TestCalculatePositionSize_BalanceFailure(t *testing.T) {
	ex := &fakeExchange{balanceErr: errors.New("timeout")}
	m := newTestManager(ex)

	got, err := m.CalculatePositionSize(context.Background(), "DBTC_DUSDT", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	_, err = m.CalculatePositionSize(context.Background(), "DBTC_DUSDT", 100, 5)
	assert.ErrorIs(t, err, models.ErrLimitExceeded)
}

func TestCanOpenPosition(t *testing.T) {
	tests := []struct {
		name      string
		ex        *fakeExchange
		openCount int
		allowed   bool
	}{
		{name: "allowed", ex: &fakeExchange{active: true, balance: 1000}, allowed: true},
		{name: "inactive market", ex: &fakeExchange{active: false, balance: 1000}},
		{name: "market status error", ex: &fakeExchange{activeErr: errors.New("boom")}},
		{name: "position limit", ex: &fakeExchange{active: true, balance: 1000}, openCount: 5},
		{name: "balance error", ex: &fakeExchange{active: true, balanceErr: errors.New("boom")}},
		{name: "below min balance", ex: &fakeExchange{active: true, balance: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(tt.ex)

			d := m.CanOpenPosition(context.Background(), "DBTC_DUSDT", 100, tt.openCount)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestShouldClosePosition(t *testing.T) {
	m := newTestManager(&fakeExchange{})
	pos := &models.Position{Side: models.SideLong, EntryPrice: 100, StopLossPrice: 97}

	d := m.ShouldClosePosition(pos, 99)
	assert.False(t, d.ShouldClose)

	d = m.ShouldClosePosition(pos, 97)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, models.CloseStopLoss, d.Kind)

	noStop := &models.Position{Side: models.SideLong, EntryPrice: 100}
	d = m.ShouldClosePosition(noStop, 95)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, models.CloseMaxLoss, d.Kind)
}

func TestCalculatePartialCloseAmount(t *testing.T) {
	m := newTestManager(&fakeExchange{})

	tests := []struct {
		name      string
		remaining float64
		pct       float64
		want      float64
	}{
		{name: "quarter of ten", remaining: 10, pct: 25, want: 2.5},
		{name: "floored to eight places", remaining: 0.123456789, pct: 50, want: 0.06172839},
		{name: "thirds never round up", remaining: 1, pct: 33.333333333, want: 0.33333333},
		{name: "full", remaining: 7.5, pct: 100, want: 7.5},
		{name: "nothing left", remaining: 0, pct: 25, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := &models.Position{RemainingQuantity: tt.remaining}

			got := m.CalculatePartialCloseAmount(pos, tt.pct)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.LessOrEqual(t, got, tt.remaining)
		})
	}
}

func TestValidateOrder(t *testing.T) {
	ex := &fakeExchange{limits: models.MarketLimits{MinAmount: 0.001, MinTotal: 5, MaxTotal: 10000, StockPrec: 4, MoneyPrec: 2}}
	m := newTestManager(ex)
	ctx := context.Background()

	res := m.ValidateOrder(ctx, "DBTC_DUSDT", models.OrderBuy, 0.1, 100)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)

	res = m.ValidateOrder(ctx, "DBTC_DUSDT", models.OrderBuy, 0.01, 100)
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 1)

	res = m.ValidateOrder(ctx, "DBTC_DUSDT", models.OrderSell, 0.0001, 0)
	assert.False(t, res.Valid)

	res = m.ValidateOrder(ctx, "DBTC_DUSDT", models.OrderSell, 0.123456, 0)
	assert.True(t, res.Valid)
	assert.Len(t, res.Warnings, 1)

	ex.limitsErr = errors.New("boom")
	res = m.ValidateOrder(ctx, "DBTC_DUSDT", models.OrderSell, 1, 0)
	assert.False(t, res.Valid)
}

func TestDailyStats_ResetOnDayChange(t *testing.T) {
	m := newTestManager(&fakeExchange{})
	day := time.Date(2024, 5, 10, 23, 0, 0, 0, time.Local)
	m.now = func() time.Time { return day }

	m.RecordTrade(-5)
	m.RecordTrade(2)
	s := m.DailyStats()
	assert.Equal(t, 2, s.TradeCount)
	assert.InDelta(t, -3, s.CumulativePnL, 1e-9)

	// повторный доступ в тот же день ничего не сбрасывает
	assert.Equal(t, s, m.DailyStats())

	day = day.Add(2 * time.Hour)
	s = m.DailyStats()
	assert.Equal(t, 0, s.TradeCount)
	assert.Equal(t, "2024-05-11", s.Day)
}

func TestGetRiskReport(t *testing.T) {
	ex := &fakeExchange{balance: 1000}
	m := newTestManager(ex)

	_, err := m.GetRiskReport(context.Background(), 0)
	require.NoError(t, err)

	ex.balance = 930
	r, err := m.GetRiskReport(context.Background(), 5)
	require.NoError(t, err)

	assert.InDelta(t, 100, r.PositionUtilPct, 1e-9)
	assert.InDelta(t, 7, r.CurrentLossPct, 1e-9)
	assert.InDelta(t, -7, r.BalanceChangePercent, 1e-9)
	assert.Len(t, r.Recommendations, 3)
}
