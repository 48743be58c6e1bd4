package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/models"
)

func TestStore_PositionsKeepInsertionOrder(t *testing.T) {
	s := New()
	for _, sym := range []string{"ETH_USDT", "BTC_USDT", "SOL_USDT"} {
		require.True(t, s.AddPosition(&models.Position{Symbol: sym, Status: models.PositionActive}))
	}

	_, ok := s.RemovePosition("BTC_USDT")
	require.True(t, ok)
	require.True(t, s.AddPosition(&models.Position{Symbol: "BTC_USDT"}))

	var got []string
	for _, p := range s.Positions() {
		got = append(got, p.Symbol)
	}
	assert.Equal(t, []string{"ETH_USDT", "SOL_USDT", "BTC_USDT"}, got)
}

func TestStore_OnePositionPerSymbol(t *testing.T) {
	s := New()

	assert.True(t, s.AddPosition(&models.Position{Symbol: "BTC_USDT", Quantity: 1}))
	assert.False(t, s.AddPosition(&models.Position{Symbol: "BTC_USDT", Quantity: 2}))

	p, ok := s.Position("BTC_USDT")
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Quantity)
	assert.False(t, s.UpdatePosition(&models.Position{Symbol: "ETH_USDT"}))
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	s.AddPosition(&models.Position{Symbol: "BTC_USDT", RemainingQuantity: 10})

	p, _ := s.Position("BTC_USDT")
	p.RemainingQuantity = 1
	p.PartialCloses = append(p.PartialCloses, models.PartialClose{Level: 1})

	again, _ := s.Position("BTC_USDT")
	assert.Equal(t, 10.0, again.RemainingQuantity)
	assert.Empty(t, again.PartialCloses)
}

func TestStore_TakePendingIsIdempotent(t *testing.T) {
	s := New()
	require.True(t, s.AddPending(models.PendingSignal{ID: "1", Symbol: "BTC_USDT"}))
	assert.False(t, s.AddPending(models.PendingSignal{ID: "1"}))

	p, ok := s.TakePending("1")
	require.True(t, ok)
	assert.Equal(t, "BTC_USDT", p.Symbol)

	_, ok = s.TakePending("1")
	assert.False(t, ok)
	assert.Zero(t, s.PendingCount())
}

func TestStore_History(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.AppendHistory(models.OrderHistoryEntry{ID: string(rune('a' + i))})
	}

	last := s.History(2)
	require.Len(t, last, 2)
	assert.Equal(t, "d", last[0].ID)
	assert.Equal(t, "e", last[1].ID)
	assert.Len(t, s.History(0), 5)
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	src := New()
	src.AddPosition(&models.Position{
		Symbol:            "DBTC_DUSDT",
		OriginalSymbol:    "BTCUSDT",
		Side:              models.SideLong,
		EntryPrice:        100,
		Quantity:          10,
		RemainingQuantity: 7.5,
		TakeProfitLevels:  []models.TakeProfitLevel{{Level: 1, Price: 102, ClosePercentage: 25}},
		StopLossPrice:     97,
		PartialCloses:     []models.PartialClose{{Level: 1, Quantity: 2.5, Price: 102, Timestamp: ts}},
		Status:            models.PositionActive,
		OpenTime:          ts,
	})
	src.AddPending(models.PendingSignal{ID: "42", Symbol: "DETH_DUSDT", ReceivedAt: ts})
	src.AppendHistory(models.OrderHistoryEntry{ID: "h1", Action: models.HistoryOpenLong, Symbol: "DBTC_DUSDT"})
	src.UpdateStats(func(st *models.TradeStats) { st.TotalTrades = 1 })

	snap := src.Export()
	dst := New()
	dst.Import(snap)

	assert.Equal(t, snap, dst.Export())
	assert.Equal(t, 1, dst.PositionCount())
	assert.Equal(t, 1, dst.PendingCount())
	assert.Equal(t, 1, dst.Stats().TotalTrades)
}
