/*
Package dbqueue serializes access to the SQLite database.

SQLite allows one writer at a time. Rather than contending on the engine's
lock from many goroutines, every write (and every read that must observe
writes in order) is submitted to a Queue and executed by a single worker on
one dedicated connection:

	q, err := dbqueue.New(db, store)
	id := q.EnqueueWrite(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path)
		return err
	})

	f := dbqueue.Read(q, func(conn *sql.Conn) (int, error) {
		var n int
		err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n)
		return n, err
	})
	n, err := f.Get()

Operations run in exactly the order they were submitted, reads and writes
alike. EnqueueWrite returns immediately with an id; the outcome is available
later from Result. Read returns a Future.

# Failures

An error or panic from an operation becomes a failed result. It never
reaches the worker, which keeps running. Writes that fail with SQLITE_BUSY
or SQLITE_LOCKED are retried using database.retry.max_attempts and
database.retry.backoff_ms, read from the configuration store on every
operation.

Results are kept for the most recent database.result_retention operations.
Older ids report ErrNotFound, as do ids that never existed.

# Shutdown

WaitForCompletion blocks until the queue is empty and nothing is running.
Its timeout only triggers a log message; it keeps waiting afterwards. Stop
drains whatever is already queued and then joins the worker. Work submitted
after Stop fails with ErrStopped.
*/
package dbqueue
