package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"media-dedup/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that writing one record exceeded the configured
	// timeout. This typically occurs when a client is receiving data too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrIdleTimeout indicates that no record was written for longer than the
	// configured idle timeout.
	ErrIdleTimeout = errors.New("idle timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the stream
	// completed. This is detected via the request context being canceled.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamClosed is returned by Encode after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// ContentType is the media type of newline-delimited JSON.
const ContentType = "application/x-ndjson"

// Config configures a LineWriter.
type Config struct {
	// WriteTimeout is the maximum time to wait for a single record write
	WriteTimeout time.Duration
	// IdleTimeout is the maximum time between records (0 = unlimited)
	IdleTimeout time.Duration
	// FlushEvery is the number of records between flushes (0 or 1 = every record)
	FlushEvery int
	// OnProgress is called after each flush with the totals so far
	OnProgress func(records, bytesWritten int64)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		FlushEvery:   100,
	}
}

// Stats summarizes a finished stream.
type Stats struct {
	Records      int64
	BytesWritten int64
	Duration     time.Duration
}

// LineWriter writes one JSON document per line to an HTTP response, with
// timeout protection against slow or vanished clients.
type LineWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelCauseFunc
	config  Config

	mu           sync.Mutex
	startTime    time.Time
	lastWrite    time.Time
	records      int64
	bytesWritten int64
	unflushed    int
	closed       bool
}

// NewLineWriter creates a writer bound to ctx, normally the request context.
func NewLineWriter(ctx context.Context, w http.ResponseWriter, config Config) *LineWriter {
	writerCtx, cancel := context.WithCancelCause(ctx)
	now := time.Now()

	lw := &LineWriter{
		w:         w,
		ctx:       writerCtx,
		cancel:    cancel,
		config:    config,
		startTime: now,
		lastWrite: now,
	}
	if flusher, ok := w.(http.Flusher); ok {
		lw.flusher = flusher
	}

	go lw.idleChecker()
	return lw
}

// Encode writes v as one line. Records are flushed to the client every
// FlushEvery records.
func (lw *LineWriter) Encode(v any) error {
	lw.mu.Lock()
	closed := lw.closed
	lw.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}

	select {
	case <-lw.ctx.Done():
		return lw.contextError()
	default:
	}

	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	n, err := lw.writeWithTimeout(line)
	if err != nil {
		return err
	}

	lw.mu.Lock()
	lw.lastWrite = time.Now()
	lw.records++
	lw.bytesWritten += int64(n)
	lw.unflushed++
	due := lw.unflushed >= max(lw.config.FlushEvery, 1)
	lw.mu.Unlock()

	if due {
		lw.Flush()
	}
	return nil
}

// Flush pushes buffered records to the client.
func (lw *LineWriter) Flush() {
	lw.mu.Lock()
	if lw.unflushed == 0 {
		lw.mu.Unlock()
		return
	}
	lw.unflushed = 0
	records, written := lw.records, lw.bytesWritten
	lw.mu.Unlock()

	if lw.flusher != nil {
		lw.flusher.Flush()
	}
	if lw.config.OnProgress != nil {
		lw.config.OnProgress(records, written)
	}
}

// writeWithTimeout performs a single write with timeout
func (lw *LineWriter) writeWithTimeout(p []byte) (int, error) {
	type writeResult struct {
		n   int
		err error
	}
	resultCh := make(chan writeResult, 1)

	go func() {
		n, err := lw.w.Write(p)
		resultCh <- writeResult{n, err}
	}()

	timeout := lw.config.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().WriteTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		return result.n, result.err
	case <-timer.C:
		lw.cancel(ErrWriteTimeout)
		return 0, ErrWriteTimeout
	case <-lw.ctx.Done():
		return 0, lw.contextError()
	}
}

// idleChecker cancels the stream when no record is written for IdleTimeout.
func (lw *LineWriter) idleChecker() {
	if lw.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(lw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lw.mu.Lock()
			idle := time.Since(lw.lastWrite)
			closed := lw.closed
			lw.mu.Unlock()

			if closed {
				return
			}
			if idle > lw.config.IdleTimeout {
				logging.Warn("Stream idle timeout exceeded: %v", idle)
				lw.cancel(ErrIdleTimeout)
				return
			}

		case <-lw.ctx.Done():
			return
		}
	}
}

// contextError maps the reason the stream context ended to a sentinel.
func (lw *LineWriter) contextError() error {
	cause := context.Cause(lw.ctx)
	switch {
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return ErrClientGone
	case cause != nil:
		return cause
	default:
		return ErrStreamClosed
	}
}

// Close flushes what is left and marks the writer as closed. It is safe to
// call more than once.
func (lw *LineWriter) Close() error {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return nil
	}
	lw.mu.Unlock()

	if lw.ctx.Err() == nil {
		lw.Flush()
	}

	lw.mu.Lock()
	lw.closed = true
	lw.mu.Unlock()
	lw.cancel(ErrStreamClosed)
	return nil
}

// Stats returns streaming statistics
func (lw *LineWriter) Stats() Stats {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return Stats{
		Records:      lw.records,
		BytesWritten: lw.bytesWritten,
		Duration:     time.Since(lw.startTime),
	}
}

// StreamLines writes records to w as newline-delimited JSON, setting the
// response headers first. It stops at the first failed write.
func StreamLines[T any](ctx context.Context, w http.ResponseWriter, records []T, config Config) (Stats, error) {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	lw := NewLineWriter(ctx, w, config)
	defer func() {
		if err := lw.Close(); err != nil {
			logging.Warn("Failed to close line writer: %v", err)
		}
	}()

	for i := range records {
		if err := lw.Encode(records[i]); err != nil {
			return lw.Stats(), err
		}
	}
	lw.Flush()

	stats := lw.Stats()
	logging.Debug("Stream completed: %d records, %d bytes in %v", stats.Records, stats.BytesWritten, stats.Duration)
	return stats, nil
}
