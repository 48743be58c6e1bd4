package engine

import (
	"context"

	"go.uber.org/zap"

	"signal_bot/internal/models"
)

// Export — точка восстановления: позиции, ожидающие сигналы, журнал, статистика.
func (e *Engine) Export() models.Snapshot {
	snap := e.store.Export()
	snap.Timestamp = e.now()
	return snap
}

// Import восстанавливает состояние. Таймеры ожидающих сигналов взводятся
// на остаток окна, просроченные снимаются сразу.
func (e *Engine) Import(ctx context.Context, snap models.Snapshot) {
	e.Stop()
	e.store.Import(snap)

	now := e.now()
	expired := 0
	for _, p := range snap.PendingSignals {
		left := p.ExpiresAt(e.cfg.ConfirmationTimeout).Sub(now)
		if left <= 0 {
			if e.expire(ctx, p.ID) {
				expired++
			}
			continue
		}
		e.armTimer(p.ID, left)
	}

	if e.watcher != nil {
		for _, p := range snap.ActivePositions {
			e.watcher.Watch(p.Symbol)
		}
	}
	e.syncGauges()

	e.log.Info("state imported",
		zap.Int("positions", len(snap.ActivePositions)),
		zap.Int("pending", len(snap.PendingSignals)-expired),
		zap.Int("expired", expired),
		zap.Int("history", len(snap.OrderHistory)),
		zap.Time("snapshot_at", snap.Timestamp))
}
