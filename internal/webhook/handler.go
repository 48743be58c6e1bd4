package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signal_bot/internal/models"
)

const SecretHeader = "X-Webhook-Secret"

// Engine — операции движка, которые открыты по HTTP.
type Engine interface {
	ProcessSignal(ctx context.Context, sig models.Signal) error
	Confirm(ctx context.Context, id string) (*models.Position, error)
	Reject(ctx context.Context, id string) error
	Positions() []*models.Position
	Pending() []models.PendingSignal
	History(n int) []models.OrderHistoryEntry
	Stats() models.TradeStats
}

// Readiness — готов ли движок принимать сигналы (состояние восстановлено, не идёт остановка).
type Readiness interface {
	Ready() bool
}

type Handler struct {
	engine Engine
	ready  Readiness
	secret string
	log    *zap.Logger
}

// NewHandler: ready == nil значит, что движок готов всегда.
func NewHandler(e Engine, ready Readiness, secret string, log *zap.Logger) *Handler {
	log = log.Named("webhook")
	if secret == "" {
		log.Warn("webhook secret is empty, requests are not authenticated")
	}
	return &Handler{engine: e, ready: ready, secret: secret, log: log}
}

type response struct {
	Status   string           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Position *models.Position `json:"position,omitempty"`
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/webhook", h.whenReady, h.Signal)

	api := r.Group("/", h.auth)
	api.POST("/signals/:id/confirm", h.whenReady, h.Confirm)
	api.POST("/signals/:id/reject", h.whenReady, h.Reject)
	api.GET("/status", h.Status)
	api.GET("/positions", h.Positions)
	api.GET("/history", h.History)
}

func (h *Handler) authorized(candidates ...string) bool {
	if h.secret == "" {
		return true
	}
	for _, c := range candidates {
		if c != "" && subtle.ConstantTimeCompare([]byte(c), []byte(h.secret)) == 1 {
			return true
		}
	}
	return false
}

func (h *Handler) auth(c *gin.Context) {
	if !h.authorized(c.GetHeader(SecretHeader)) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response{Status: "unauthorized"})
		return
	}
	c.Next()
}

// whenReady отвечает 503, пока состояние не восстановлено и после начала остановки:
// источник повторит запрос, а сигнал не потеряется при импорте снимка.
func (h *Handler) whenReady(c *gin.Context) {
	if h.ready != nil && !h.ready.Ready() {
		h.log.Warn("request refused, engine not ready", zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response{Status: "not_ready"})
		return
	}
	c.Next()
}

// Signal принимает алерт. Сигнал, отброшенный по правилам (чужая стратегия,
// неизвестное действие, риск-лимит), отвечает 200: источник не должен ретраить.
func (h *Handler) Signal(c *gin.Context) {
	var sig models.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		h.log.Warn("malformed signal", zap.Error(err), zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusBadRequest, response{Status: "malformed", Error: err.Error()})
		return
	}
	if !h.authorized(c.GetHeader(SecretHeader), sig.Secret) {
		h.log.Warn("signal with bad secret", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, response{Status: "unauthorized"})
		return
	}

	h.log.Info("signal received",
		zap.String("action", string(sig.Action)),
		zap.String("ticker", sig.Ticker),
		zap.Float64("price", sig.Price),
		zap.String("strategy", sig.Strategy))

	err := h.engine.ProcessSignal(c.Request.Context(), sig)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, response{Status: "accepted"})
	case errors.Is(err, models.ErrSignalIgnored), errors.Is(err, models.ErrUnknownSignal):
		c.JSON(http.StatusOK, response{Status: "ignored", Error: err.Error()})
	case errors.Is(err, models.ErrRiskLimit), errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrPositionExists):
		c.JSON(http.StatusOK, response{Status: "rejected", Error: err.Error()})
	default:
		h.log.Error("signal processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, response{Status: "error", Error: err.Error()})
	}
}

func (h *Handler) Confirm(c *gin.Context) {
	pos, err := h.engine.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), response{Status: "error", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Status: "confirmed", Position: pos})
}

func (h *Handler) Reject(c *gin.Context) {
	if err := h.engine.Reject(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), response{Status: "error", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Status: "rejected"})
}

func (h *Handler) Status(c *gin.Context) {
	stats := h.engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"positions": len(h.engine.Positions()),
		"pending":   h.engine.Pending(),
		"stats": gin.H{
			"totalTrades": stats.TotalTrades,
			"profitable":  stats.Profitable,
			"losing":      stats.Losing,
			"totalPnL":    stats.TotalPnL,
			"winRate":     stats.WinRate(),
			"averagePnL":  stats.AveragePnL(),
		},
		"time": time.Now().UTC(),
	})
}

func (h *Handler) Positions(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Positions())
}

func (h *Handler) History(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, response{Status: "malformed", Error: "limit must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, h.engine.History(n))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrSignalNotFound), errors.Is(err, models.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRiskLimit), errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrPositionExists):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrExchange):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
