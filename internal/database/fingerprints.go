package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveFingerprints stores fingerprints in one transaction, replacing any
// earlier fingerprint of the same file and mode.
func SaveFingerprints(ctx context.Context, conn *sql.Conn, fps []Fingerprint) error {
	if len(fps) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("save_fingerprint", start, err) }()

	err = withTx(ctx, conn, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fingerprints (file_id, mode, content_hash, perceptual_hash, file_size, file_mod_time, processed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, mode) DO UPDATE SET
			content_hash = excluded.content_hash,
			perceptual_hash = excluded.perceptual_hash,
			file_size = excluded.file_size,
			file_mod_time = excluded.file_mod_time,
			processed_at = excluded.processed_at,
			error = excluded.error
		`)
		if err != nil {
			return fmt.Errorf("prepare fingerprint insert: %w", err)
		}
		defer stmt.Close()

		for i := range fps {
			fp := &fps[i]
			var phash sql.NullInt64
			if fp.HasPerceptual {
				// Stored as the signed bit pattern; SQLite integers are 64-bit signed.
				phash = sql.NullInt64{Int64: int64(fp.PerceptualHash), Valid: true}
			}
			processedAt := fp.ProcessedAt
			if processedAt.IsZero() {
				processedAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, fp.FileID, fp.Mode, fp.ContentHash, phash,
				fp.FileSize, fp.FileModTime.Unix(), processedAt.Unix(), fp.Error); err != nil {
				return fmt.Errorf("save fingerprint for file %d: %w", fp.FileID, err)
			}
		}
		recordAffected("save_fingerprint", int64(len(fps)))
		return nil
	})
	return err
}

// FingerprintedFiles returns every file with a successful fingerprint for
// mode, ordered by file id.
func FingerprintedFiles(ctx context.Context, q Querier, mode string) ([]FingerprintedFile, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fingerprinted_files", start, err) }()

	var rows *sql.Rows
	rows, err = q.QueryContext(ctx, `
	SELECT f.id, f.path, f.root, f.name, f.category, f.extension, f.size, f.mod_time,
	       p.content_hash, p.perceptual_hash, p.file_size, p.file_mod_time, p.processed_at
	FROM fingerprints p
	JOIN files f ON f.id = p.file_id
	WHERE p.mode = ? AND p.error = ''
	ORDER BY f.id
	`, mode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []FingerprintedFile
	for rows.Next() {
		var (
			ff                              FingerprintedFile
			modTime, fpModTime, processedAt int64
			phash                           sql.NullInt64
		)
		if err = rows.Scan(&ff.File.ID, &ff.File.Path, &ff.File.Root, &ff.File.Name, &ff.File.Category,
			&ff.File.Extension, &ff.File.Size, &modTime,
			&ff.Fingerprint.ContentHash, &phash, &ff.Fingerprint.FileSize, &fpModTime, &processedAt); err != nil {
			return nil, err
		}
		ff.File.ModTime = time.Unix(modTime, 0)
		ff.Fingerprint.FileID = ff.File.ID
		ff.Fingerprint.Mode = mode
		ff.Fingerprint.FileModTime = time.Unix(fpModTime, 0)
		ff.Fingerprint.ProcessedAt = time.Unix(processedAt, 0)
		if phash.Valid {
			ff.Fingerprint.PerceptualHash = uint64(phash.Int64)
			ff.Fingerprint.HasPerceptual = true
		}
		result = append(result, ff)
	}
	err = rows.Err()
	return result, err
}
