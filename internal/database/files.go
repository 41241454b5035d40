package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertFiles inserts or updates files in one transaction and marks them
// seen at seenAt. Fingerprints of files whose size or modification time
// changed become stale and are picked up again by UnprocessedFiles.
func UpsertFiles(ctx context.Context, conn *sql.Conn, files []MediaFile, seenAt time.Time) error {
	if len(files) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_files", start, err) }()

	err = withTx(ctx, conn, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (path, root, name, category, extension, size, mod_time, seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			root = excluded.root,
			name = excluded.name,
			category = excluded.category,
			extension = excluded.extension,
			size = excluded.size,
			mod_time = excluded.mod_time,
			seen_at = excluded.seen_at
		`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		var affected int64
		for i := range files {
			f := &files[i]
			result, err := stmt.ExecContext(ctx, f.Path, f.Root, f.Name, f.Category, f.Extension,
				f.Size, f.ModTime.Unix(), seenAt.Unix())
			if err != nil {
				return fmt.Errorf("upsert %s: %w", f.Path, err)
			}
			if n, err := result.RowsAffected(); err == nil {
				affected += n
			}
		}
		if affected > 0 {
			recordAffected("upsert_files", affected)
		}
		return nil
	})
	return err
}

// DeleteMissingFiles removes files under the given roots that were not seen
// since cutoff. With no roots it considers every file. Their fingerprints
// and group memberships go with them.
func DeleteMissingFiles(ctx context.Context, conn *sql.Conn, roots []string, cutoff time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_missing_files", start, err) }()

	query := "DELETE FROM files WHERE seen_at < ?"
	args := []any{cutoff.Unix()}
	if len(roots) > 0 {
		query += " AND root IN (" + placeholders(len(roots)) + ")"
		for _, r := range roots {
			args = append(args, r)
		}
	}

	var result sql.Result
	result, err = conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	recordRows("delete_missing_files", result)
	return result.RowsAffected()
}

// DeleteFilesOutsideRoots removes files whose root is no longer configured.
func DeleteFilesOutsideRoots(ctx context.Context, conn *sql.Conn, roots []string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_missing_files", start, err) }()

	query := "DELETE FROM files"
	var args []any
	if len(roots) > 0 {
		query += " WHERE root NOT IN (" + placeholders(len(roots)) + ")"
		for _, r := range roots {
			args = append(args, r)
		}
	}

	var result sql.Result
	result, err = conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	recordRows("delete_missing_files", result)
	return result.RowsAffected()
}

// UnprocessedFiles returns up to limit files that have no fingerprint for
// mode, or whose fingerprint predates a change to the file.
func UnprocessedFiles(ctx context.Context, q Querier, mode string, limit int) ([]MediaFile, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("unprocessed_files", start, err) }()

	if limit <= 0 {
		limit = 1000
	}

	var rows *sql.Rows
	rows, err = q.QueryContext(ctx, `
	SELECT f.id, f.path, f.root, f.name, f.category, f.extension, f.size, f.mod_time
	FROM files f
	LEFT JOIN fingerprints p ON p.file_id = f.id AND p.mode = ?
	WHERE p.file_id IS NULL
	   OR p.file_size != f.size
	   OR p.file_mod_time != f.mod_time
	ORDER BY f.id
	LIMIT ?
	`, mode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []MediaFile
	for rows.Next() {
		f, scanErr := scanFile(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		files = append(files, f)
	}
	err = rows.Err()
	return files, err
}

// GetFileByPath retrieves a single file by path.
func GetFileByPath(ctx context.Context, q Querier, path string) (*MediaFile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := q.QueryRowContext(ctx, `
	SELECT id, path, root, name, category, extension, size, mod_time
	FROM files WHERE path = ?
	`, path)

	f, err := scanFile(row)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (MediaFile, error) {
	var (
		f       MediaFile
		modTime int64
	)
	if err := s.Scan(&f.ID, &f.Path, &f.Root, &f.Name, &f.Category, &f.Extension, &f.Size, &modTime); err != nil {
		return MediaFile{}, err
	}
	f.ModTime = time.Unix(modTime, 0)
	return f, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
