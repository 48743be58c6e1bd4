package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal_bot/internal/models"
)

const namespace = "signal_bot"

// Metrics — коллекторы бота в собственном реестре.
type Metrics struct {
	reg *prometheus.Registry

	signalsTotal   *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	ordersTotal    *prometheus.CounterVec
	closedTotal    *prometheus.CounterVec
	closedPnL      prometheus.Histogram
	openPositions  prometheus.Gauge
	pendingSignals prometheus.Gauge

	apiLatency *prometheus.HistogramVec
	apiErrors  *prometheus.CounterVec

	feedConnected prometheus.Gauge
	feedLastTick  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		signalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Received signals by action",
		}, []string{"action"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_rejected_total",
			Help:      "Signals that did not lead to an order, by cause",
		}, []string{"kind"}),
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Market orders placed, by side and result",
		}, []string{"side", "result"}),
		closedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Closed positions by reason",
		}, []string{"reason"}),
		closedPnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "position_pnl_percent",
			Help:      "Total PnL percent of closed positions",
			Buckets:   []float64{-10, -5, -3, -1, 0, 1, 2, 4, 6, 10},
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Currently open positions",
		}),
		pendingSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_signals",
			Help:      "Signals awaiting operator confirmation",
		}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_seconds",
			Help:      "Exchange API latency by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_errors_total",
			Help:      "Failed exchange API calls by endpoint",
		}, []string{"endpoint"}),
		feedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_feed_connected",
			Help:      "1 while the websocket price feed is connected",
		}),
		feedLastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_feed_last_tick_timestamp_seconds",
			Help:      "Unix time of the last price update",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.signalsTotal,
		m.rejectedTotal,
		m.ordersTotal,
		m.closedTotal,
		m.closedPnL,
		m.openPositions,
		m.pendingSignals,
		m.apiLatency,
		m.apiErrors,
		m.feedConnected,
		m.feedLastTick,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) SignalReceived(action string) { m.signalsTotal.WithLabelValues(action).Inc() }
func (m *Metrics) SignalRejected(kind string)   { m.rejectedTotal.WithLabelValues(kind).Inc() }

func (m *Metrics) OrderPlaced(side string, err error) {
	result := "ok"
	if err != nil {
		result = models.ErrorKind(err)
	}
	m.ordersTotal.WithLabelValues(strings.ToLower(side), result).Inc()
}

func (m *Metrics) PositionClosed(reason string, pnlPercent float64) {
	m.closedTotal.WithLabelValues(reasonLabel(reason)).Inc()
	m.closedPnL.Observe(pnlPercent)
}

func (m *Metrics) OpenPositions(n int)  { m.openPositions.Set(float64(n)) }
func (m *Metrics) PendingSignals(n int) { m.pendingSignals.Set(float64(n)) }

// ObserveRequest подходит как exchange.Observer.
func (m *Metrics) ObserveRequest(endpoint string, took time.Duration, err error) {
	m.apiLatency.WithLabelValues(endpoint).Observe(took.Seconds())
	if err != nil {
		m.apiErrors.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) FeedState(connected bool) {
	if connected {
		m.feedConnected.Set(1)
		return
	}
	m.feedConnected.Set(0)
}

func (m *Metrics) FeedTick(at time.Time) { m.feedLastTick.Set(float64(at.Unix())) }

// reasonLabel сводит произвольную причину закрытия к короткой метке.
func reasonLabel(reason string) string {
	r := strings.ToLower(reason)
	switch {
	case strings.HasPrefix(r, "stop loss"):
		return "stop_loss"
	case strings.HasPrefix(r, "max loss"):
		return "max_loss"
	case strings.HasPrefix(r, "tp"):
		return "take_profit"
	case strings.Contains(r, "manual"):
		return "manual"
	case strings.Contains(r, "exit"):
		return "exit"
	}
	return "other"
}
