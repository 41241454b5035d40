package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
	"media-dedup/internal/pool"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// SchemaVersion is stored in the metadata table.
const SchemaVersion = 1

// ReadPoolName labels the read connection pool in logs and metrics.
const ReadPoolName = "db-read"

// Querier is satisfied by *sql.Conn, *sql.Tx and *sql.DB.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Database owns the SQLite file. Writes go through a single connection
// (handed to the database queue via DB); reads outside the queue use a
// resizable pool of query-only connections.
type Database struct {
	db     *sql.DB
	readDB *sql.DB
	reads  *pool.Pool[*sql.Conn]
	dbPath string
}

// New opens the database file at dbPath and creates the schema.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// Diagnose potential permission issues
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One writer. The queue reserves this connection for its worker.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	-- Files discovered by the scanner
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		root TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		extension TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL,
		seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_files_root ON files(root);
	CREATE INDEX IF NOT EXISTS idx_files_category ON files(category);
	CREATE INDEX IF NOT EXISTS idx_files_seen_at ON files(seen_at);
	CREATE INDEX IF NOT EXISTS idx_files_size ON files(size);

	-- One fingerprint per file and mode
	CREATE TABLE IF NOT EXISTS fingerprints (
		file_id INTEGER NOT NULL,
		mode TEXT NOT NULL,
		content_hash TEXT NOT NULL DEFAULT '',
		perceptual_hash INTEGER,
		file_size INTEGER NOT NULL,
		file_mod_time INTEGER NOT NULL,
		processed_at INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (file_id, mode),
		FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_fingerprints_mode_hash ON fingerprints(mode, content_hash);

	-- Duplicate groups, rebuilt per mode after each processing pass
	CREATE TABLE IF NOT EXISTS duplicate_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		kind TEXT NOT NULL,
		hash TEXT NOT NULL,
		file_count INTEGER NOT NULL,
		total_size INTEGER NOT NULL,
		reclaimable INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_duplicate_groups_mode ON duplicate_groups(mode, kind);

	CREATE TABLE IF NOT EXISTS duplicate_members (
		group_id INTEGER NOT NULL,
		file_id INTEGER NOT NULL,
		PRIMARY KEY (group_id, file_id),
		FOREIGN KEY (group_id) REFERENCES duplicate_groups(id) ON DELETE CASCADE,
		FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_duplicate_members_file ON duplicate_members(file_id);

	-- Scan history
	CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		files_seen INTEGER NOT NULL DEFAULT 0,
		files_removed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at);

	-- Metadata table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations records the schema version and refuses files written by a
// newer version.
func (d *Database) runMigrations(ctx context.Context) error {
	current, err := GetMetadata(ctx, d.db, metadataSchemaVersion)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if current != "" {
		v, convErr := strconv.Atoi(current)
		if convErr != nil {
			return fmt.Errorf("invalid schema version %q: %w", current, convErr)
		}
		if v > SchemaVersion {
			return fmt.Errorf("database schema version %d is newer than supported version %d", v, SchemaVersion)
		}
		if v == SchemaVersion {
			return nil
		}
	}

	logging.Info("Migrating database schema to version %d", SchemaVersion)
	return SetMetadata(ctx, d.db, metadataSchemaVersion, strconv.Itoa(SchemaVersion))
}

// DB returns the write handle. It is meant for the database queue.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// OpenReadPool opens the query-only connections used by ReadOnly and sizes
// the pool to size connections.
func (d *Database) OpenReadPool(size int) (*pool.Pool[*sql.Conn], error) {
	if d.reads != nil {
		return d.reads, nil
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_query_only=true", d.dbPath)
	readDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open read connections: %w", err)
	}
	readDB.SetMaxOpenConns(pool.ConnectionBounds.Max)
	readDB.SetMaxIdleConns(pool.ConnectionBounds.Max)

	reads := pool.New(ReadPoolName, pool.ConnectionBounds,
		func() (*sql.Conn, error) {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()
			return readDB.Conn(ctx)
		},
		pool.WithDestroy(func(c *sql.Conn) {
			if err := c.Close(); err != nil {
				logging.Debug("failed to close read connection: %v", err)
			}
		}),
	)

	if err := reads.Initialize(size); err != nil {
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to initialize read pool: %w", err)
	}

	d.readDB = readDB
	d.reads = reads
	logging.Info("Database read pool ready with %d connections", size)
	return reads, nil
}

// ReadPool returns the read connection pool, or nil before OpenReadPool.
func (d *Database) ReadPool() *pool.Pool[*sql.Conn] {
	return d.reads
}

// ReadOnly runs fn on a pooled read connection. Reads never wait behind the
// write queue, so they may miss writes still queued.
func (d *Database) ReadOnly(ctx context.Context, fn func(*sql.Conn) error) error {
	if d.reads == nil {
		return errors.New("read pool not open")
	}
	return d.reads.With(ctx, fn)
}

// Close shuts the read pool down and closes the database.
func (d *Database) Close() error {
	var errs []error
	if d.reads != nil {
		d.reads.Shutdown()
		if err := d.readDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close read connections: %w", err))
		}
	}
	if err := d.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withTx runs fn in a transaction on conn, committing on success.
func withTx(ctx context.Context, conn *sql.Conn, fn func(*sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

func recordRows(operation string, result sql.Result) {
	if rows, err := result.RowsAffected(); err == nil {
		recordAffected(operation, rows)
	}
}

func recordAffected(operation string, rows int64) {
	if rows > 0 {
		metrics.DBRowsAffected.WithLabelValues(operation).Observe(float64(rows))
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	// Check directory permissions
	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	// Check if directory is writable by testing
	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		if path == dbPath {
			continue
		}
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", path)
		}
	}

	return nil
}
