package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"signal_bot/internal/models"
)

const (
	latestFile     = "backup.json"
	snapshotPrefix = "backup-"
	snapshotLayout = "20060102-150405.000"
)

// FileSink хранит backup.json с последним снимком и keep датированных копий.
type FileSink struct {
	dir  string
	keep int
}

func NewFileSink(dir string, keep int) *FileSink {
	return &FileSink{dir: dir, keep: keep}
}

func (f *FileSink) Name() string { return "file" }

func (f *FileSink) Save(_ context.Context, snap models.Snapshot, data []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	stamped := filepath.Join(f.dir, snapshotPrefix+snap.Timestamp.UTC().Format(snapshotLayout)+".json")
	if err := writeAtomic(stamped, data); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(f.dir, latestFile), data); err != nil {
		return err
	}
	return f.prune()
}

func (f *FileSink) Latest(_ context.Context) (models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, latestFile))
	if errors.Is(err, os.ErrNotExist) {
		return models.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read backup: %w", err)
	}
	return decode(data)
}

// prune удаляет датированные снимки сверх keep, самые старые первыми.
func (f *FileSink) prune() error {
	if f.keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, snapshotPrefix) && strings.HasSuffix(n, ".json") {
			names = append(names, n)
		}
	}
	if len(names) <= f.keep {
		return nil
	}
	sort.Strings(names)

	for _, n := range names[:len(names)-f.keep] {
		if err := os.Remove(filepath.Join(f.dir, n)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove old backup: %w", err)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
