package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"signal_bot/internal/models"
	"signal_bot/pkg/db"
)

const (
	createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS bot_snapshots (
	id         BIGSERIAL PRIMARY KEY,
	taken_at   TIMESTAMPTZ NOT NULL,
	positions  INT NOT NULL,
	pending    INT NOT NULL,
	payload    JSONB NOT NULL
)`

	insertSnapshot = `
INSERT INTO bot_snapshots (taken_at, positions, pending, payload)
VALUES ($1, $2, $3, $4)`

	pruneSnapshots = `
DELETE FROM bot_snapshots
WHERE id NOT IN (SELECT id FROM bot_snapshots ORDER BY taken_at DESC, id DESC LIMIT $1)`

	selectLatestSnapshot = `
SELECT payload FROM bot_snapshots ORDER BY taken_at DESC, id DESC LIMIT 1`
)

// PostgresSink хранит снимки в таблице bot_snapshots (JSONB).
type PostgresSink struct {
	tx   db.TxManager
	keep int
}

func NewPostgresSink(tx db.TxManager, keep int) *PostgresSink {
	return &PostgresSink{tx: tx, keep: keep}
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) Migrate(ctx context.Context) error {
	return p.tx.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctx, createSnapshotsTable)
		return err
	})
}

func (p *PostgresSink) Save(ctx context.Context, snap models.Snapshot, data []byte) error {
	return p.tx.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		if _, err := tx.Exec(ctx, insertSnapshot,
			snap.Timestamp, len(snap.ActivePositions), len(snap.PendingSignals), data); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if p.keep > 0 {
			if _, err := tx.Exec(ctx, pruneSnapshots, p.keep); err != nil {
				return fmt.Errorf("prune snapshots: %w", err)
			}
		}
		return nil
	})
}

func (p *PostgresSink) Latest(ctx context.Context) (models.Snapshot, error) {
	var data []byte
	err := p.tx.RunRepeatableRead(ctx, func(ctx context.Context, tx db.Transaction) error {
		return tx.QueryRow(ctx, selectLatestSnapshot).Scan(&data)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("select snapshot: %w", err)
	}
	return decode(data)
}
