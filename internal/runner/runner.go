package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/backup"
	"signal_bot/internal/engine"
	"signal_bot/internal/models"
	"signal_bot/internal/server"
)

// Engine — то, что планировщик дёргает у движка по расписанию.
type Engine interface {
	MonitorPositions(ctx context.Context) engine.MonitorReport
	CleanupPending(ctx context.Context) int
	Import(ctx context.Context, snap models.Snapshot)
	Positions() []*models.Position
	Pending() []models.PendingSignal
	Stop()
}

type Backuper interface {
	Backup(ctx context.Context) (backup.Result, error)
	Latest(ctx context.Context) (models.Snapshot, string, error)
}

type Notifier interface {
	Send(ctx context.Context, text string) error
}

type Config struct {
	MonitorInterval time.Duration
	CleanupInterval time.Duration
	BackupInterval  time.Duration
	// Restore — поднимать состояние из последнего снимка при старте.
	Restore bool
}

// Runner — фоновые циклы бота: мониторинг позиций, чистка сигналов, бэкап.
type Runner struct {
	cfg    Config
	engine Engine
	backup Backuper
	n      Notifier
	state  *server.State
	log    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, e Engine, b Backuper, n Notifier, st *server.State, log *zap.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		engine: e,
		backup: b,
		n:      n,
		state:  st,
		log:    log.Named("runner"),
	}
}

// Restore поднимает последний снимок. Отсутствие снимка не ошибка: бот
// стартует с пустым состоянием.
func (r *Runner) Restore(ctx context.Context) error {
	if !r.cfg.Restore || r.backup == nil {
		return nil
	}
	snap, from, err := r.backup.Latest(ctx)
	switch {
	case errors.Is(err, backup.ErrNoSnapshot):
		r.log.Info("no snapshot to restore, starting clean")
		return nil
	case err != nil:
		return fmt.Errorf("restore: %w", err)
	}

	r.engine.Import(ctx, snap)
	r.state.SetRestoredFrom(from)
	r.log.Info("state restored", zap.String("from", from), zap.Time("snapshot_at", snap.Timestamp))
	return nil
}

func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.loop(ctx, "monitor", r.cfg.MonitorInterval, r.monitor)
	r.loop(ctx, "cleanup", r.cfg.CleanupInterval, r.cleanup)
	r.loop(ctx, "backup", r.cfg.BackupInterval, r.runBackup)

	r.state.SetReady(true)
	r.log.Info("runner started",
		zap.Duration("monitor", r.cfg.MonitorInterval),
		zap.Duration("cleanup", r.cfg.CleanupInterval),
		zap.Duration("backup", r.cfg.BackupInterval))
	r.notify(ctx, r.startText())
}

// Stop останавливает циклы, гасит таймеры подтверждения и сохраняет финальный снимок.
func (r *Runner) Stop(ctx context.Context) error {
	r.state.SetReady(false)
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.engine.Stop()

	var err error
	if r.backup != nil {
		if _, err = r.backup.Backup(ctx); err != nil {
			r.log.Error("final backup failed", zap.Error(err))
		}
	}
	r.notify(ctx, fmt.Sprintf("🛑 *Бот остановлен*\nОткрытых позиций: %d", len(r.engine.Positions())))
	r.log.Info("runner stopped")
	return err
}

func (r *Runner) loop(ctx context.Context, name string, every time.Duration, fn func(ctx context.Context)) {
	if every <= 0 {
		r.log.Warn("loop disabled", zap.String("loop", name))
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (r *Runner) monitor(ctx context.Context) {
	rep := r.engine.MonitorPositions(ctx)
	r.state.TouchSweep(time.Now())
	if rep.Closed > 0 || rep.Partial > 0 || rep.Failed > 0 {
		r.log.Info("monitor sweep",
			zap.Int("checked", rep.Checked),
			zap.Int("closed", rep.Closed),
			zap.Int("partial", rep.Partial),
			zap.Int("failed", rep.Failed))
	}
}

func (r *Runner) cleanup(ctx context.Context) {
	if n := r.engine.CleanupPending(ctx); n > 0 {
		r.log.Info("expired signals removed", zap.Int("count", n))
	}
}

func (r *Runner) runBackup(ctx context.Context) {
	if r.backup == nil {
		return
	}
	if _, err := r.backup.Backup(ctx); err != nil {
		r.log.Error("scheduled backup failed", zap.Error(err))
	}
}

func (r *Runner) startText() string {
	text := fmt.Sprintf("🚀 *Бот запущен*\nОткрытых позиций: %d\nОжидают подтверждения: %d",
		len(r.engine.Positions()), len(r.engine.Pending()))
	if from := r.state.RestoredFrom(); from != "" {
		text += "\nСостояние восстановлено из: " + from
	}
	return text
}

func (r *Runner) notify(ctx context.Context, text string) {
	if r.n == nil {
		return
	}
	if err := r.n.Send(ctx, text); err != nil {
		r.log.Warn("notify failed", zap.Error(err))
	}
}
