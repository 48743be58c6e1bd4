package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/models"
)

const (
	confirmPrefix = "CONF::"
	rejectPrefix  = "REJ::"
)

// ConfirmData / RejectData — callback data кнопок подтверждения.
func ConfirmData(id string) string { return confirmPrefix + id }
func RejectData(id string) string  { return rejectPrefix + id }

// ParseChoice разбирает callback data кнопки: id сигнала и решение оператора.
func ParseChoice(data string) (id string, confirm bool, ok bool) {
	if id, ok = strings.CutPrefix(data, confirmPrefix); ok {
		return id, true, id != ""
	}
	if id, ok = strings.CutPrefix(data, rejectPrefix); ok {
		return id, false, id != ""
	}
	return "", false, false
}

func (e *Engine) requestConfirmation(ctx context.Context, sig models.Signal, symbol string) error {
	p := models.PendingSignal{
		ID:         e.ids.Generate().String(),
		Signal:     sig,
		Symbol:     symbol,
		ReceivedAt: e.now(),
	}
	if !e.store.AddPending(p) {
		return fmt.Errorf("pending signal id collision: %s", p.ID)
	}
	e.armTimer(p.ID, e.cfg.ConfirmationTimeout)
	e.syncGauges()

	e.log.Info("signal awaiting confirmation", zap.String("id", p.ID), zap.String("symbol", symbol), zap.Float64("price", sig.Price))

	err := e.notify.Ask(ctx, formatConfirmRequest(p, e.cfg.ConfirmationTimeout), []models.Choice{
		{Text: "✅ Подтвердить", Data: ConfirmData(p.ID)},
		{Text: "❌ Отклонить", Data: RejectData(p.ID)},
	})
	if err != nil {
		// остаётся в ожидании: подтвердить можно через HTTP, иначе истечёт по таймеру
		e.log.Warn("confirmation prompt failed", zap.String("id", p.ID), zap.Error(err))
	}
	return nil
}

// Confirm открывает позицию по ожидающему сигналу.
func (e *Engine) Confirm(ctx context.Context, id string) (*models.Position, error) {
	var pos *models.Position
	err := e.guard("confirm", func() error {
		p, ok := e.store.TakePending(id)
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrSignalNotFound, id)
		}
		e.cancelTimer(id)
		e.syncGauges()

		if !e.now().Before(p.ExpiresAt(e.cfg.ConfirmationTimeout)) {
			e.notifyExpired(ctx, p)
			return fmt.Errorf("%w: %s", models.ErrSignalNotFound, id)
		}

		e.log.Info("signal confirmed", zap.String("id", id), zap.String("symbol", p.Symbol))
		var err error
		pos, err = e.OpenLong(ctx, p.Symbol, p.Signal.Price, p.Signal)
		return err
	})
	return pos, err
}

func (e *Engine) Reject(ctx context.Context, id string) error {
	return e.guard("reject", func() error {
		p, ok := e.store.TakePending(id)
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrSignalNotFound, id)
		}
		e.cancelTimer(id)
		e.syncGauges()

		e.log.Info("signal rejected by operator", zap.String("id", id), zap.String("symbol", p.Symbol))
		e.metrics.SignalRejected("operator")
		e.send(ctx, fmt.Sprintf("❌ Сигнал BUY `%s` отклонён оператором", p.Symbol))
		return nil
	})
}

// CleanupPending снимает все сигналы, чьё окно подтверждения истекло.
func (e *Engine) CleanupPending(ctx context.Context) int {
	n := 0
	_ = e.guard("cleanup_pending", func() error {
		now := e.now()
		for _, p := range e.store.Pending() {
			if now.Before(p.ExpiresAt(e.cfg.ConfirmationTimeout)) {
				continue
			}
			if e.expire(ctx, p.ID) {
				n++
			}
		}
		return nil
	})
	if n > 0 {
		e.log.Info("expired pending signals reaped", zap.Int("count", n))
	}
	return n
}

// expire идемпотентен: если сигнал уже снят, ничего не делает.
func (e *Engine) expire(ctx context.Context, id string) bool {
	e.cancelTimer(id)
	p, ok := e.store.TakePending(id)
	if !ok {
		return false
	}
	e.syncGauges()
	e.notifyExpired(ctx, p)
	return true
}

func (e *Engine) notifyExpired(ctx context.Context, p models.PendingSignal) {
	e.log.Info("pending signal expired", zap.String("id", p.ID), zap.String("symbol", p.Symbol))
	e.metrics.SignalRejected("expired")
	e.send(ctx, fmt.Sprintf("⏰ Сигнал BUY `%s` истёк без подтверждения", p.Symbol))
}

func (e *Engine) armTimer(id string, after time.Duration) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if old, ok := e.timers[id]; ok {
		old.Stop()
	}
	// колбэк берёт timersMu через cancelTimer, поэтому запись появится раньше, чем он её удалит
	e.timers[id] = time.AfterFunc(after, func() {
		_ = e.guard("confirmation_timeout", func() error {
			e.expire(context.Background(), id)
			return nil
		})
	})
}

func (e *Engine) cancelTimer(id string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

// Stop гасит все таймеры подтверждения.
func (e *Engine) Stop() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}
