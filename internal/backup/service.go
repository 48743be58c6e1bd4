package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signal_bot/internal/models"
	"signal_bot/pkg/tracing"
)

// ErrNoSnapshot — в хранилище ещё нет ни одного снимка.
var ErrNoSnapshot = errors.New("no snapshot")

// Source отдаёт текущее состояние движка.
type Source interface {
	Export() models.Snapshot
}

// Sink — одно место хранения снимков.
type Sink interface {
	Name() string
	Save(ctx context.Context, snap models.Snapshot, data []byte) error
	// Latest возвращает самый свежий снимок или ErrNoSnapshot.
	Latest(ctx context.Context) (models.Snapshot, error)
}

type Result struct {
	At        time.Time
	Positions int
	Pending   int
	History   int
	Saved     []string
	Failed    map[string]error
}

func (r Result) String() string {
	s := fmt.Sprintf("Снимок %s: позиций %d, сигналов %d, записей %d. Сохранён: %s",
		r.At.Format("2006-01-02 15:04:05"), r.Positions, r.Pending, r.History, strings.Join(r.Saved, ", "))
	if len(r.Failed) > 0 {
		names := make([]string, 0, len(r.Failed))
		for n := range r.Failed {
			names = append(names, n)
		}
		sort.Strings(names)
		s += ". Ошибки: " + strings.Join(names, ", ")
	}
	return s
}

type Service struct {
	src   Source
	sinks []Sink
	log   *zap.Logger
}

func NewService(src Source, log *zap.Logger, sinks ...Sink) *Service {
	return &Service{src: src, sinks: sinks, log: log.Named("backup")}
}

func (s *Service) Sinks() []string {
	names := make([]string, 0, len(s.sinks))
	for _, k := range s.sinks {
		names = append(names, k.Name())
	}
	return names
}

// Backup пишет снимок во все хранилища параллельно. Ошибка возвращается,
// только если не удалось сохранить ни в одно.
func (s *Service) Backup(ctx context.Context) (res Result, err error) {
	span, ctx := tracing.StartSpan(ctx, "backup.Backup")
	defer func() { tracing.Finish(span, err) }()

	if len(s.sinks) == 0 {
		return Result{}, errors.New("backup: no sinks configured")
	}

	snap := s.src.Export()
	data, err := encode(snap)
	if err != nil {
		return Result{}, err
	}

	errs := make([]error, len(s.sinks))
	var g errgroup.Group
	for i, sink := range s.sinks {
		g.Go(func() error {
			errs[i] = sink.Save(ctx, snap, data)
			return errs[i]
		})
	}
	_ = g.Wait()

	res = Result{
		At:        snap.Timestamp,
		Positions: len(snap.ActivePositions),
		Pending:   len(snap.PendingSignals),
		History:   len(snap.OrderHistory),
	}
	for i, sink := range s.sinks {
		if errs[i] != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]error)
			}
			res.Failed[sink.Name()] = errs[i]
			s.log.Error("backup sink failed", zap.String("sink", sink.Name()), zap.Error(errs[i]))
			continue
		}
		res.Saved = append(res.Saved, sink.Name())
	}

	if len(res.Saved) == 0 {
		return res, fmt.Errorf("backup: all sinks failed: %w", errors.Join(errs...))
	}
	s.log.Info("backup created",
		zap.Strings("sinks", res.Saved),
		zap.Int("positions", res.Positions),
		zap.Int("pending", res.Pending),
		zap.Int("history", res.History),
		zap.Int("bytes", len(data)))
	return res, nil
}

// Latest опрашивает все хранилища и возвращает самый свежий снимок.
func (s *Service) Latest(ctx context.Context) (models.Snapshot, string, error) {
	snaps := make([]*models.Snapshot, len(s.sinks))
	g, gctx := errgroup.WithContext(ctx)
	for i, sink := range s.sinks {
		g.Go(func() error {
			snap, err := sink.Latest(gctx)
			switch {
			case errors.Is(err, ErrNoSnapshot):
				return nil
			case err != nil:
				// недоступное хранилище не мешает восстановиться из остальных
				s.log.Warn("read latest snapshot failed", zap.String("sink", sink.Name()), zap.Error(err))
				return nil
			}
			snaps[i] = &snap
			return nil
		})
	}
	_ = g.Wait()

	var (
		best *models.Snapshot
		from string
	)
	for i, snap := range snaps {
		if snap != nil && (best == nil || snap.Timestamp.After(best.Timestamp)) {
			best, from = snap, s.sinks[i].Name()
		}
	}
	if best == nil {
		return models.Snapshot{}, "", ErrNoSnapshot
	}
	return *best, from, nil
}

func encode(snap models.Snapshot) ([]byte, error) {
	data, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
