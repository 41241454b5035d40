/*
Package streaming writes newline-delimited JSON responses with timeout
protection.

# Overview

Large result sets, such as every duplicate group of a library, are sent one
JSON document per line rather than as a single array, so neither side has
to hold the whole response in memory. Slow or disconnected clients must not
hold the handler forever, so each record write is bounded and a stream with
no progress is cancelled.

# Key Features

  - Per-record write timeouts
  - Idle detection between records
  - Batched flushing (FlushEvery records per flush)
  - Client disconnect detection through the request context
  - Optional progress callback after each flush

# Basic Usage

	func (h *Handlers) ExportDuplicates(w http.ResponseWriter, r *http.Request) {
		groups := loadGroups(r)
		_, err := streaming.StreamLines(r.Context(), w, groups, streaming.DefaultConfig())
		if err != nil && !errors.Is(err, streaming.ErrClientGone) {
			logging.Warn("Export failed: %v", err)
		}
	}

StreamLines sets the Content-Type to application/x-ndjson and writes the
status line before the first record, so errors after that point can only
be logged.

# Advanced Usage

For records produced incrementally, create a LineWriter directly:

	lw := streaming.NewLineWriter(r.Context(), w, streaming.Config{
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
		FlushEvery:   50,
	})
	defer lw.Close()

	for rec := range records {
		if err := lw.Encode(rec); err != nil {
			return err
		}
	}

# Errors

  - ErrWriteTimeout: one record took longer than WriteTimeout to write
  - ErrIdleTimeout: no record was written for IdleTimeout
  - ErrClientGone: the request context ended
  - ErrStreamClosed: Encode was called after Close

After any of these the writer is unusable; every later Encode returns the
same error.

# Middleware

Response writers wrapped by middleware must implement http.Flusher for
batched flushing to reach the client. The logging middleware's writer does.
*/
package streaming
