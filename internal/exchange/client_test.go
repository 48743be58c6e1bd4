package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
)

const (
	testKey    = "key"
	testSecret = "secret"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(config.WhiteBitConfig{
		APIKey:     testKey,
		Secret:     testSecret,
		BaseURL:    srv.URL,
		Timeout:    time.Second,
		MarketsTTL: time.Minute,
	}, zap.NewNop())
}

func checkSigned(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	payload := r.Header.Get("X-TXC-PAYLOAD")
	assert.Equal(t, testKey, r.Header.Get("X-TXC-APIKEY"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(body), payload)

	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write([]byte(payload))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("X-TXC-SIGNATURE"))

	var params map[string]any
	require.NoError(t, json.Unmarshal(body, &params))
	assert.Equal(t, r.URL.Path, params["request"])
	assert.NotZero(t, params["nonce"])
	return params
}

func TestClient_GetCurrencyBalance(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathBalance, r.URL.Path)
		checkSigned(t, r)
		_, _ = w.Write([]byte(`{"USDT":{"available":"1000.5","freeze":"1"},"BTC":{"available":"0.1","freeze":"0"}}`))
	}))

	got, err := c.GetCurrencyBalance(context.Background(), "usdt")
	require.NoError(t, err)
	assert.Equal(t, 1000.5, got)

	all, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.1, all["BTC"].Available)
}

func TestClient_MarketBuyOrder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := checkSigned(t, r)
		assert.Equal(t, "DBTC_DUSDT", params["market"])
		assert.Equal(t, "buy", params["side"])
		assert.Equal(t, "20", params["amount"])
		_, _ = w.Write([]byte(`{"orderId":4180284841,"status":"FILLED","dealMoney":"20","dealStock":"0.2"}`))
	}))

	res, err := c.CreateMarketBuyOrder(context.Background(), "DBTC_DUSDT", 20)
	require.NoError(t, err)
	assert.Equal(t, "4180284841", res.OrderID)

	px, ok := res.FillPrice()
	require.True(t, ok)
	assert.InDelta(t, 100, px, 1e-9)
}

func TestClient_ErrorResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":32,"message":"Validation failed","errors":{"amount":["Amount too small"]}}`))
	}))

	_, err := c.CreateMarketSellOrder(context.Background(), "DBTC_DUSDT", 0.00001)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrExchange)
	assert.Contains(t, err.Error(), "Amount too small")
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestClient_MissingCredentials(t *testing.T) {
	c := NewClient(config.WhiteBitConfig{BaseURL: "http://127.0.0.1:0"}, zap.NewNop())

	_, err := c.GetBalance(context.Background())
	assert.ErrorIs(t, err, models.ErrExchange)
}

func TestClient_Ticker(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/public/ticker", r.URL.Path)
		_, _ = w.Write([]byte(`{"DBTC_DUSDT":{"last_price":"101.5","base_volume":"10","change":"1.2"}}`))
	}))

	tk, err := c.GetTicker(context.Background(), "DBTC_DUSDT")
	require.NoError(t, err)
	assert.Equal(t, 101.5, tk.Last)

	_, err = c.GetTicker(context.Background(), "NOPE_USDT")
	assert.ErrorIs(t, err, models.ErrExchange)
}

func TestClient_MarketsCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[
			{"name":"DBTC_DUSDT","stock":"DBTC","money":"DUSDT","stockPrec":"6","moneyPrec":"2","makerFee":"0.1","takerFee":"0.1","minAmount":"0.0001","minTotal":"5","maxTotal":"1000000","tradesEnabled":true},
			{"name":"DETH_DUSDT","stock":"DETH","money":"DUSDT","stockPrec":"4","moneyPrec":"2","makerFee":"0.1","takerFee":"0.1","minAmount":"0.001","minTotal":"5","maxTotal":"1000000","tradesEnabled":false}
		]`))
	}))
	ctx := context.Background()

	lim, err := c.GetMarketLimits(ctx, "DBTC_DUSDT")
	require.NoError(t, err)
	assert.Equal(t, 5.0, lim.MinTotal)
	assert.Equal(t, 6, lim.StockPrec)

	active, err := c.IsMarketActive(ctx, "DETH_DUSDT")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = c.IsMarketActive(ctx, "UNKNOWN")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = c.GetMarketLimits(ctx, "UNKNOWN")
	assert.Error(t, err)

	markets, err := c.GetMarkets(ctx)
	require.NoError(t, err)
	assert.Len(t, markets, 2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NonceIncreases(t *testing.T) {
	c := NewClient(config.WhiteBitConfig{}, zap.NewNop())

	prev := c.nextNonce()
	for i := 0; i < 100; i++ {
		n := c.nextNonce()
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestPriceFeed_HandleAndFallback(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"DETH_DUSDT":{"last_price":"2000"}}`))
	}))
	f := NewPriceFeed("ws://unused", c, time.Minute, zap.NewNop())
	var ticks atomic.Int32
	f.OnTick(func(time.Time) { ticks.Add(1) })

	f.handle([]byte(`{"id":null,"method":"lastprice_update","params":["DBTC_DUSDT","101.25"]}`))
	f.handle([]byte(`{"id":1,"result":{"status":"success"}}`))
	f.handle([]byte(`not json`))

	px, ok := f.Cached("DBTC_DUSDT")
	require.True(t, ok)
	assert.Equal(t, 101.25, px)
	assert.Equal(t, int32(1), ticks.Load())

	px, err := f.LastPrice(context.Background(), "DETH_DUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, px)
}

func TestPriceFeed_WatchUnwatch(t *testing.T) {
	f := NewPriceFeed("ws://unused", nil, time.Minute, zap.NewNop())

	f.Watch("B_USDT", "A_USDT", "B_USDT")
	assert.Equal(t, []string{"A_USDT", "B_USDT"}, f.watched())

	f.set("A_USDT", 1, time.Now())
	f.Unwatch("A_USDT")
	assert.Equal(t, []string{"B_USDT"}, f.watched())
	_, ok := f.Cached("A_USDT")
	assert.False(t, ok)

	_, err := f.LastPrice(context.Background(), "A_USDT")
	assert.ErrorIs(t, err, models.ErrExchange)
}
