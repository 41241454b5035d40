package database

import (
	"context"
	"database/sql"
	"time"
)

// CalculateStats summarizes the library for mode.
func CalculateStats(ctx context.Context, q Querier, mode string) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := Stats{Mode: mode, FilesByCategory: make(map[string]int)}

	var rows *sql.Rows
	rows, err = q.QueryContext(ctx, `SELECT category, COUNT(*), COALESCE(SUM(size), 0) FROM files GROUP BY category`)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var (
			category string
			count    int
			size     int64
		)
		if err = rows.Scan(&category, &count, &size); err != nil {
			rows.Close()
			return stats, err
		}
		stats.FilesByCategory[category] = count
		stats.TotalFiles += count
		stats.TotalSize += size
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return stats, err
	}

	err = q.QueryRowContext(ctx, `
	SELECT
		COALESCE(SUM(CASE WHEN error = '' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0)
	FROM fingerprints WHERE mode = ?
	`, mode).Scan(&stats.ProcessedFiles, &stats.FailedFiles)
	if err != nil {
		return stats, err
	}

	err = q.QueryRowContext(ctx, `
	SELECT
		COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(file_count), 0),
		COALESCE(SUM(reclaimable), 0)
	FROM duplicate_groups WHERE mode = ?
	`, KindExact, KindSimilar, mode).Scan(&stats.ExactGroups, &stats.SimilarGroups, &stats.DuplicateFiles, &stats.ReclaimableBytes)
	if err != nil {
		return stats, err
	}

	stats.LastScan, err = lastScanRun(ctx, q)
	return stats, err
}
