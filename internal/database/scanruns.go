package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// NewScanRun starts a scan run record with a fresh id.
func NewScanRun(startedAt time.Time) ScanRun {
	return ScanRun{ID: uuid.NewString(), StartedAt: startedAt}
}

// RecordScanRun stores a finished scan run.
func RecordScanRun(ctx context.Context, q Querier, run ScanRun) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_scan_run", start, err) }()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err = q.ExecContext(ctx, `
	INSERT INTO scan_runs (id, started_at, finished_at, files_seen, files_removed, error)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		files_seen = excluded.files_seen,
		files_removed = excluded.files_removed,
		error = excluded.error
	`, run.ID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.FilesSeen, run.FilesRemoved, run.Error)
	return err
}

// RecentScanRuns returns up to limit scan runs, newest first.
func RecentScanRuns(ctx context.Context, q Querier, limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := q.QueryContext(ctx, `
	SELECT id, started_at, finished_at, files_seen, files_removed, error
	FROM scan_runs
	ORDER BY started_at DESC, rowid DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(s rowScanner) (ScanRun, error) {
	var (
		run               ScanRun
		started, finished int64
	)
	if err := s.Scan(&run.ID, &started, &finished, &run.FilesSeen, &run.FilesRemoved, &run.Error); err != nil {
		return ScanRun{}, err
	}
	run.StartedAt = time.Unix(started, 0)
	run.FinishedAt = time.Unix(finished, 0)
	return run, nil
}

// lastScanRun returns the newest scan run, or nil if none exists.
func lastScanRun(ctx context.Context, q Querier) (*ScanRun, error) {
	row := q.QueryRowContext(ctx, `
	SELECT id, started_at, finished_at, files_seen, files_removed, error
	FROM scan_runs ORDER BY started_at DESC, rowid DESC LIMIT 1
	`)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
