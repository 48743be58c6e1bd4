package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/models"
)

type fakeEngine struct {
	err      error
	received []models.Signal
	confirm  map[string]*models.Position
}

func (f *fakeEngine) ProcessSignal(_ context.Context, sig models.Signal) error {
	f.received = append(f.received, sig)
	return f.err
}

func (f *fakeEngine) Confirm(_ context.Context, id string) (*models.Position, error) {
	pos, ok := f.confirm[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSignalNotFound, id)
	}
	return pos, nil
}

func (f *fakeEngine) Reject(_ context.Context, id string) error {
	if _, ok := f.confirm[id]; !ok {
		return fmt.Errorf("%w: %s", models.ErrSignalNotFound, id)
	}
	return nil
}

func (f *fakeEngine) Positions() []*models.Position {
	return []*models.Position{{Symbol: "DBTC_DUSDT", EntryPrice: 100}}
}
func (f *fakeEngine) Pending() []models.PendingSignal        { return nil }
func (f *fakeEngine) History(int) []models.OrderHistoryEntry { return nil }
func (f *fakeEngine) Stats() models.TradeStats {
	return models.TradeStats{TotalTrades: 2, Profitable: 1}
}

func newRouter(e Engine, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(e, nil, secret, zap.NewNop()).Register(r)
	return r
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const buyBody = `{"action":"BUY","ticker":"BTCUSDT","price":"100.5","strategy":"EMA Ribbon v2"}`

func TestSignal_Accepted(t *testing.T) {
	e := &fakeEngine{}
	rec := do(newRouter(e, ""), http.MethodPost, "/webhook", buyBody, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accepted", decodeStatus(t, rec).Status)
	require.Len(t, e.received, 1)
	assert.Equal(t, models.ActionBuy, e.received[0].Action)
	assert.InDelta(t, 100.5, e.received[0].Price, 1e-9)
}

func TestSignal_Secret(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		header map[string]string
		code   int
	}{
		{"missing", buyBody, nil, http.StatusUnauthorized},
		{"wrong header", buyBody, map[string]string{SecretHeader: "nope"}, http.StatusUnauthorized},
		{"header", buyBody, map[string]string{SecretHeader: "s3cret"}, http.StatusOK},
		{"body", `{"action":"BUY","ticker":"BTCUSDT","price":100,"strategy":"x","secret":"s3cret"}`, nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := &fakeEngine{}
			rec := do(newRouter(e, "s3cret"), http.MethodPost, "/webhook", tc.body, tc.header)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code != http.StatusOK {
				assert.Empty(t, e.received)
			}
		})
	}
}

func TestSignal_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   int
		status string
	}{
		{fmt.Errorf("%w: strategy", models.ErrSignalIgnored), http.StatusOK, "ignored"},
		{fmt.Errorf("%w: HOLD", models.ErrUnknownSignal), http.StatusOK, "ignored"},
		{models.ErrDailyLossExceeded, http.StatusOK, "rejected"},
		{fmt.Errorf("%w: amount", models.ErrValidation), http.StatusOK, "rejected"},
		{fmt.Errorf("wrapped: %w", models.ErrPositionExists), http.StatusOK, "rejected"},
		{fmt.Errorf("%w: timeout", models.ErrExchange), http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := do(newRouter(&fakeEngine{err: tc.err}, ""), http.MethodPost, "/webhook", buyBody, nil)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.status, decodeStatus(t, rec).Status)
		})
	}
}

func TestSignal_Malformed(t *testing.T) {
	e := &fakeEngine{}
	rec := do(newRouter(e, ""), http.MethodPost, "/webhook", `{"action":"BUY","price":"abc"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.received)
}

func TestConfirmReject(t *testing.T) {
	e := &fakeEngine{confirm: map[string]*models.Position{"7": {Symbol: "DBTC_DUSDT"}}}
	r := newRouter(e, "s3cret")
	auth := map[string]string{SecretHeader: "s3cret"}

	rec := do(r, http.MethodPost, "/signals/7/confirm", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeStatus(t, rec)
	assert.Equal(t, "confirmed", resp.Status)
	require.NotNil(t, resp.Position)
	assert.Equal(t, "DBTC_DUSDT", resp.Position.Symbol)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/signals/8/confirm", "", auth).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/signals/7/reject", "", auth).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/signals/7/reject", "", nil).Code)
}

func TestStatusAndPositions(t *testing.T) {
	r := newRouter(&fakeEngine{}, "")

	rec := do(r, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.EqualValues(t, 1, status["positions"])

	rec = do(r, http.MethodGet, "/positions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "DBTC_DUSDT")

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/history?limit=x", "", nil).Code)
}

type readiness struct{ ready bool }

func (r *readiness) Ready() bool { return r.ready }

func TestSignal_RefusedUntilReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := &fakeEngine{confirm: map[string]*models.Position{"7": {Symbol: "DBTC_DUSDT"}}}
	ready := &readiness{}
	r := gin.New()
	NewHandler(e, ready, "", zap.NewNop()).Register(r)

	rec := do(r, http.MethodPost, "/webhook", buyBody, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", decodeStatus(t, rec).Status)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/signals/7/confirm", "", nil).Code)
	assert.Empty(t, e.received)

	// чтение доступно и до готовности
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/status", "", nil).Code)

	ready.ready = true
	rec = do(r, http.MethodPost, "/webhook", buyBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, e.received, 1)

	// остановка снова закрывает приём
	ready.ready = false
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/webhook", buyBody, nil).Code)
	assert.Len(t, e.received, 1)
}
