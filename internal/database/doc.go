// Package database provides SQLite storage for media-dedup.
//
// It stores:
//   - Files found by the scanner
//   - Fingerprints, one per file and mode
//   - Duplicate groups and their members
//   - Scan history
//
// The database uses WAL mode. All writes, and reads that must see them in
// order, are functions of a *sql.Conn executed by the database queue on the
// single write connection (DB). Reads that can tolerate slightly stale data
// use ReadOnly, which borrows a connection from a resizable pool of
// query-only connections.
//
// Query functions take a Querier or *sql.Conn rather than a Database so they
// can run on either path:
//
//	q.EnqueueWrite(func(conn *sql.Conn) error {
//	    return database.UpsertFiles(ctx, conn, batch, seenAt)
//	})
package database
