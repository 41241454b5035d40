package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	metadataSchemaVersion = "schema_version"
	metadataLastProcessed = "last_processed"
)

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func GetMetadata(ctx context.Context, q Querier, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err := q.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetMetadata sets a metadata key-value pair.
func SetMetadata(ctx context.Context, q Querier, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := q.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetLastProcessed returns when processing last completed.
// Returns zero time if never run.
func GetLastProcessed(ctx context.Context, q Querier) (time.Time, error) {
	value, err := GetMetadata(ctx, q, metadataLastProcessed)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastProcessed stores when processing last completed.
func SetLastProcessed(ctx context.Context, q Querier, t time.Time) error {
	if t.IsZero() {
		return SetMetadata(ctx, q, metadataLastProcessed, "")
	}
	return SetMetadata(ctx, q, metadataLastProcessed, t.UTC().Format(time.RFC3339))
}
