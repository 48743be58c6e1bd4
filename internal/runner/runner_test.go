package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/backup"
	"signal_bot/internal/engine"
	"signal_bot/internal/models"
	"signal_bot/internal/server"
)

type fakeEngine struct {
	monitors atomic.Int32
	cleanups atomic.Int32
	stopped  atomic.Bool
	imported []models.Snapshot
}

func (f *fakeEngine) MonitorPositions(context.Context) engine.MonitorReport {
	f.monitors.Add(1)
	return engine.MonitorReport{Checked: 1}
}

func (f *fakeEngine) CleanupPending(context.Context) int {
	f.cleanups.Add(1)
	return 0
}

func (f *fakeEngine) Import(_ context.Context, snap models.Snapshot) {
	f.imported = append(f.imported, snap)
}

func (f *fakeEngine) Positions() []*models.Position {
	return []*models.Position{{Symbol: "DBTC_DUSDT"}}
}
func (f *fakeEngine) Pending() []models.PendingSignal { return nil }
func (f *fakeEngine) Stop()                           { f.stopped.Store(true) }

type fakeBackup struct {
	backups atomic.Int32
	latest  models.Snapshot
	from    string
	err     error
}

func (f *fakeBackup) Backup(context.Context) (backup.Result, error) {
	f.backups.Add(1)
	return backup.Result{Saved: []string{"file"}}, nil
}

func (f *fakeBackup) Latest(context.Context) (models.Snapshot, string, error) {
	return f.latest, f.from, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeNotifier) all() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.sent, "\n")
}

func TestRestore(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("snapshot found", func(t *testing.T) {
		e := &fakeEngine{}
		st := server.NewState()
		b := &fakeBackup{latest: models.Snapshot{Timestamp: at}, from: "s3"}
		r := New(Config{Restore: true}, e, b, nil, st, zap.NewNop())

		require.NoError(t, r.Restore(context.Background()))
		require.Len(t, e.imported, 1)
		assert.Equal(t, at, e.imported[0].Timestamp)
		assert.Equal(t, "s3", st.RestoredFrom())
	})

	t.Run("nothing saved yet", func(t *testing.T) {
		e := &fakeEngine{}
		b := &fakeBackup{err: backup.ErrNoSnapshot}
		r := New(Config{Restore: true}, e, b, nil, server.NewState(), zap.NewNop())

		require.NoError(t, r.Restore(context.Background()))
		assert.Empty(t, e.imported)
	})

	t.Run("read failure", func(t *testing.T) {
		b := &fakeBackup{err: errors.New("boom")}
		r := New(Config{Restore: true}, &fakeEngine{}, b, nil, server.NewState(), zap.NewNop())

		assert.Error(t, r.Restore(context.Background()))
	})

	t.Run("disabled", func(t *testing.T) {
		e := &fakeEngine{}
		b := &fakeBackup{latest: models.Snapshot{Timestamp: at}, from: "file"}
		r := New(Config{}, e, b, nil, server.NewState(), zap.NewNop())

		require.NoError(t, r.Restore(context.Background()))
		assert.Empty(t, e.imported)
	})
}

func TestStartStop(t *testing.T) {
	e := &fakeEngine{}
	b := &fakeBackup{}
	n := &fakeNotifier{}
	st := server.NewState()
	r := New(Config{
		MonitorInterval: 5 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
		BackupInterval:  time.Hour,
	}, e, b, n, st, zap.NewNop())

	r.Start()
	assert.True(t, st.Ready())

	require.Eventually(t, func() bool {
		return e.monitors.Load() >= 2 && e.cleanups.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	assert.False(t, st.LastSweep().IsZero())

	require.NoError(t, r.Stop(context.Background()))
	assert.False(t, st.Ready())
	assert.True(t, e.stopped.Load())
	assert.EqualValues(t, 1, b.backups.Load())

	out := n.all()
	assert.Contains(t, out, "Бот запущен")
	assert.Contains(t, out, "Бот остановлен")
	assert.Contains(t, out, "Открытых позиций: 1")

	// после Stop циклы не работают
	monitors := e.monitors.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, monitors, e.monitors.Load())
}

func TestLoop_Disabled(t *testing.T) {
	e := &fakeEngine{}
	r := New(Config{}, e, nil, nil, server.NewState(), zap.NewNop())

	r.Start()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))

	assert.Zero(t, e.monitors.Load())
	assert.Zero(t, e.cleanups.Load())
}
