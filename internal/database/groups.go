package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReplaceGroups swaps the duplicate groups of mode for groups in one
// transaction. Group IDs and CreatedAt are assigned here; each group's Files
// need only their ID set.
func ReplaceGroups(ctx context.Context, conn *sql.Conn, mode string, groups []DuplicateGroup) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("replace_groups", start, err) }()

	err = withTx(ctx, conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM duplicate_groups WHERE mode = ?", mode); err != nil {
			return fmt.Errorf("clear groups: %w", err)
		}

		groupStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO duplicate_groups (mode, kind, hash, file_count, total_size, reclaimable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare group insert: %w", err)
		}
		defer groupStmt.Close()

		memberStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO duplicate_members (group_id, file_id) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare member insert: %w", err)
		}
		defer memberStmt.Close()

		now := time.Now()
		for i := range groups {
			g := &groups[i]
			result, err := groupStmt.ExecContext(ctx, mode, g.Kind, g.Hash, len(g.Files), g.TotalSize, g.Reclaimable, now.Unix())
			if err != nil {
				return fmt.Errorf("insert group %s: %w", g.Hash, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return err
			}
			g.ID = id
			g.Mode = mode
			g.CreatedAt = now

			for _, f := range g.Files {
				if _, err := memberStmt.ExecContext(ctx, id, f.ID); err != nil {
					return fmt.Errorf("insert member %d of group %d: %w", f.ID, id, err)
				}
			}
		}
		recordAffected("replace_groups", int64(len(groups)))
		return nil
	})
	return err
}

// Groups returns the duplicate groups of mode, largest reclaimable size
// first. An empty kind returns every kind.
func Groups(ctx context.Context, q Querier, mode, kind string) ([]DuplicateGroup, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("groups", start, err) }()

	query := `
	SELECT g.id, g.kind, g.hash, g.total_size, g.reclaimable, g.created_at,
	       f.id, f.path, f.root, f.name, f.category, f.extension, f.size, f.mod_time
	FROM duplicate_groups g
	JOIN duplicate_members m ON m.group_id = g.id
	JOIN files f ON f.id = m.file_id
	WHERE g.mode = ?`
	args := []any{mode}
	if kind != "" {
		query += " AND g.kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY g.reclaimable DESC, g.id, f.path"

	var rows *sql.Rows
	rows, err = q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var (
			g                  DuplicateGroup
			f                  MediaFile
			createdAt, modTime int64
		)
		if err = rows.Scan(&g.ID, &g.Kind, &g.Hash, &g.TotalSize, &g.Reclaimable, &createdAt,
			&f.ID, &f.Path, &f.Root, &f.Name, &f.Category, &f.Extension, &f.Size, &modTime); err != nil {
			return nil, err
		}
		f.ModTime = time.Unix(modTime, 0)

		if n := len(groups); n == 0 || groups[n-1].ID != g.ID {
			g.Mode = mode
			g.CreatedAt = time.Unix(createdAt, 0)
			groups = append(groups, g)
		}
		last := &groups[len(groups)-1]
		last.Files = append(last.Files, f)
	}
	err = rows.Err()
	return groups, err
}
