package repo

import (
	"context"
	"database/sql"
	"errors"
)

// SaveGanttSnapshot replaces the single stored gantt snapshot.
func (r Repo) SaveGanttSnapshot(ctx context.Context, tx *sql.Tx, payload []byte, savedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO gantt_snapshots(id,saved_at,payload_json) VALUES (1,?,?)
ON CONFLICT(id) DO UPDATE SET saved_at=excluded.saved_at, payload_json=excluded.payload_json`, savedAt, string(payload))
	return err
}

// LoadGanttSnapshot returns the stored snapshot or ErrNotFound.
func (r Repo) LoadGanttSnapshot(ctx context.Context) ([]byte, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM gantt_snapshots WHERE id=1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}
