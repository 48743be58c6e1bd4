package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshotAt(ts time.Time) models.Snapshot {
	return models.Snapshot{
		ActivePositions: []models.Position{{Symbol: "DBTC_DUSDT", EntryPrice: 100, Quantity: 1, RemainingQuantity: 1}},
		PendingSignals:  []models.PendingSignal{{ID: "42", Symbol: "DETH_DUSDT", ReceivedAt: ts}},
		Stats:           models.TradeStats{TotalTrades: 3, Profitable: 2, Losing: 1, TotalPnL: 4.5},
		Timestamp:       ts,
	}
}

type staticSource struct{ snap models.Snapshot }

func (s staticSource) Export() models.Snapshot { return s.snap }

type memSink struct {
	name string
	err  error

	mu   sync.Mutex
	last *models.Snapshot
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Save(_ context.Context, snap models.Snapshot, data []byte) error {
	if m.err != nil {
		return m.err
	}
	decoded, err := decode(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &decoded
	return nil
}

func (m *memSink) Latest(context.Context) (models.Snapshot, error) {
	if m.err != nil {
		return models.Snapshot{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return models.Snapshot{}, ErrNoSnapshot
	}
	return *m.last, nil
}

func TestFileSink_SaveLatestAndPrune(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, 2)
	ctx := context.Background()

	_, err := sink.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	for i := range 3 {
		snap := snapshotAt(t0.Add(time.Duration(i) * time.Hour))
		require.NoError(t, sink.Save(ctx, snap, mustEncode(t, snap)))
	}

	stamped, err := filepath.Glob(filepath.Join(dir, snapshotPrefix+"*.json"))
	require.NoError(t, err)
	assert.Len(t, stamped, 2)
	assert.FileExists(t, filepath.Join(dir, latestFile))
	assert.NoFileExists(t, filepath.Join(dir, snapshotPrefix+t0.Format(snapshotLayout)+".json"))

	got, err := sink.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(t0.Add(2*time.Hour)))
	require.Len(t, got.ActivePositions, 1)
	assert.Equal(t, "DBTC_DUSDT", got.ActivePositions[0].Symbol)
	assert.Equal(t, 3, got.Stats.TotalTrades)
}

func TestFileSink_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, latestFile), []byte("{not json"), 0o644))

	_, err := NewFileSink(dir, 1).Latest(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshot)
}

func TestService_BackupPartialFailure(t *testing.T) {
	good := &memSink{name: "mem"}
	bad := &memSink{name: "bad", err: errors.New("disk full")}
	svc := NewService(staticSource{snapshotAt(t0)}, zap.NewNop(), good, bad)

	res, err := svc.Backup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"mem"}, res.Saved)
	assert.Contains(t, res.Failed, "bad")
	assert.Equal(t, 1, res.Positions)
	assert.Equal(t, 1, res.Pending)
	assert.Contains(t, res.String(), "bad")
	require.NotNil(t, good.last)
	assert.Equal(t, "42", good.last.PendingSignals[0].ID)
}

func TestService_BackupAllFailed(t *testing.T) {
	svc := NewService(staticSource{snapshotAt(t0)}, zap.NewNop(),
		&memSink{name: "a", err: errors.New("boom")},
		&memSink{name: "b", err: errors.New("boom")})

	_, err := svc.Backup(context.Background())
	assert.Error(t, err)
}

func TestService_LatestPicksNewest(t *testing.T) {
	ctx := context.Background()
	older := &memSink{name: "older"}
	newer := &memSink{name: "newer"}
	broken := &memSink{name: "broken", err: errors.New("unreachable")}
	empty := &memSink{name: "empty"}

	require.NoError(t, older.Save(ctx, models.Snapshot{}, mustEncode(t, snapshotAt(t0))))
	require.NoError(t, newer.Save(ctx, models.Snapshot{}, mustEncode(t, snapshotAt(t0.Add(time.Minute)))))

	svc := NewService(staticSource{}, zap.NewNop(), older, broken, newer, empty)
	snap, from, err := svc.Latest(ctx)

	require.NoError(t, err)
	assert.Equal(t, "newer", from)
	assert.True(t, snap.Timestamp.Equal(t0.Add(time.Minute)))

	_, _, err = NewService(staticSource{}, zap.NewNop(), empty).Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Sink_SaveAndLatest(t *testing.T) {
	store := &fakeObjects{objects: map[string][]byte{}}
	sink := NewS3Sink(store, "bucket", "bot/")
	ctx := context.Background()

	_, err := sink.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := snapshotAt(t0)
	require.NoError(t, sink.Save(ctx, snap, mustEncode(t, snap)))

	assert.Contains(t, store.objects, "bucket/bot/latest.json")
	assert.Contains(t, store.objects, "bucket/bot/"+snapshotPrefix+t0.Format(snapshotLayout)+".json")

	got, err := sink.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(t0))
	assert.InDelta(t, 4.5, got.Stats.TotalPnL, 1e-9)
}

func mustEncode(t *testing.T, snap models.Snapshot) []byte {
	t.Helper()
	data, err := encode(snap)
	require.NoError(t, err)
	return data
}
