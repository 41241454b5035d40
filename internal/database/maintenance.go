package database

import (
	"context"
	"database/sql"
	"time"
)

// ResetFingerprints deletes every fingerprint and duplicate group of mode so
// the next processing pass starts over. It returns the fingerprints removed.
func ResetFingerprints(ctx context.Context, conn *sql.Conn, mode string) (int64, error) {
	start := time.Now()
	var (
		err     error
		removed int64
	)
	defer func() { recordQuery("reset_fingerprints", start, err) }()

	err = withTx(ctx, conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM fingerprints WHERE mode = ?", mode)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, "DELETE FROM duplicate_groups WHERE mode = ?", mode); err != nil {
			return err
		}
		return nil
	})
	if err == nil {
		recordAffected("reset_fingerprints", removed)
	}
	return removed, err
}

// Optimize refreshes query planner statistics and checkpoints the WAL.
func Optimize(ctx context.Context, conn *sql.Conn) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("optimize", start, err) }()

	if _, err = conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
