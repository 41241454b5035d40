package streaming

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type record struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// decodeLines parses every line of body as a record.
func decodeLines(t *testing.T, body string) []record {
	t.Helper()
	var out []record
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", scanner.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

// flushCounter counts flushes on top of a recorder.
type flushCounter struct {
	*httptest.ResponseRecorder
	mu      sync.Mutex
	flushes int
}

func (f *flushCounter) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
	f.ResponseRecorder.Flush()
}

func (f *flushCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

// blockingWriter never completes a write until released.
type blockingWriter struct {
	header  http.Header
	release chan struct{}
}

func (b *blockingWriter) Header() http.Header { return b.header }
func (b *blockingWriter) WriteHeader(int)     {}
func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	return len(p), nil
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if config.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want 30s", config.WriteTimeout)
	}
	if config.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", config.IdleTimeout)
	}
	if config.FlushEvery != 100 {
		t.Errorf("FlushEvery = %d, want 100", config.FlushEvery)
	}
}

func TestStreamLines(t *testing.T) {
	t.Parallel()

	records := []record{{1, "a.jpg"}, {2, "b.jpg"}, {3, "c.jpg"}}
	w := httptest.NewRecorder()

	stats, err := StreamLines(context.Background(), w, records, DefaultConfig())
	if err != nil {
		t.Fatalf("StreamLines: %v", err)
	}

	if got := w.Header().Get("Content-Type"); got != ContentType {
		t.Errorf("Content-Type = %q, want %q", got, ContentType)
	}
	if stats.Records != 3 {
		t.Errorf("Records = %d, want 3", stats.Records)
	}
	if stats.BytesWritten != int64(w.Body.Len()) {
		t.Errorf("BytesWritten = %d, body has %d", stats.BytesWritten, w.Body.Len())
	}

	got := decodeLines(t, w.Body.String())
	if len(got) != len(records) {
		t.Fatalf("decoded %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestStreamLines_Empty(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	stats, err := StreamLines[record](context.Background(), w, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("StreamLines: %v", err)
	}
	if stats.Records != 0 || w.Body.Len() != 0 {
		t.Errorf("empty stream wrote %d records, %d bytes", stats.Records, w.Body.Len())
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestLineWriter_FlushEvery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		flushEvery  int
		records     int
		wantFlushes int
	}{
		{"every record", 1, 5, 5},
		{"zero means every record", 0, 3, 3},
		{"batched", 2, 5, 3}, // 2, 4, then Close flushes the fifth
		{"never reached", 10, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := &flushCounter{ResponseRecorder: httptest.NewRecorder()}
			var progress []int64
			config := DefaultConfig()
			config.FlushEvery = tt.flushEvery
			config.OnProgress = func(records, _ int64) { progress = append(progress, records) }

			lw := NewLineWriter(context.Background(), w, config)
			for i := range tt.records {
				if err := lw.Encode(record{ID: i}); err != nil {
					t.Fatalf("Encode: %v", err)
				}
			}
			if err := lw.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			if got := w.count(); got != tt.wantFlushes {
				t.Errorf("flushes = %d, want %d", got, tt.wantFlushes)
			}
			if len(progress) != tt.wantFlushes {
				t.Errorf("progress callbacks = %d, want %d", len(progress), tt.wantFlushes)
			}
			if n := len(progress); n > 0 && progress[n-1] != int64(tt.records) {
				t.Errorf("last progress = %d, want %d", progress[n-1], tt.records)
			}
		})
	}
}

func TestLineWriter_Closed(t *testing.T) {
	t.Parallel()

	lw := NewLineWriter(context.Background(), httptest.NewRecorder(), DefaultConfig())
	if err := lw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := lw.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := lw.Encode(record{}); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Encode after Close = %v, want ErrStreamClosed", err)
	}
}

func TestLineWriter_ClientGone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	lw := NewLineWriter(ctx, httptest.NewRecorder(), DefaultConfig())
	defer lw.Close()

	if err := lw.Encode(record{ID: 1}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cancel()
	if err := lw.Encode(record{ID: 2}); !errors.Is(err, ErrClientGone) {
		t.Errorf("Encode after cancel = %v, want ErrClientGone", err)
	}
	if got := lw.Stats().Records; got != 1 {
		t.Errorf("Records = %d, want 1", got)
	}
}

func TestLineWriter_WriteTimeout(t *testing.T) {
	t.Parallel()

	w := &blockingWriter{header: make(http.Header), release: make(chan struct{})}
	defer close(w.release)

	config := DefaultConfig()
	config.WriteTimeout = 20 * time.Millisecond
	config.IdleTimeout = 0
	lw := NewLineWriter(context.Background(), w, config)
	defer lw.Close()

	if err := lw.Encode(record{ID: 1}); !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Encode = %v, want ErrWriteTimeout", err)
	}
	// The stream is abandoned after a timed-out write.
	if err := lw.Encode(record{ID: 2}); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Encode after timeout = %v, want ErrWriteTimeout", err)
	}
}

func TestLineWriter_IdleTimeout(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.IdleTimeout = 40 * time.Millisecond
	lw := NewLineWriter(context.Background(), httptest.NewRecorder(), config)
	defer lw.Close()

	deadline := time.Now().Add(2 * time.Second)
	for lw.ctx.Err() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := lw.Encode(record{}); !errors.Is(err, ErrIdleTimeout) {
		t.Errorf("Encode after idle period = %v, want ErrIdleTimeout", err)
	}
}

func TestLineWriter_UnencodableRecord(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	lw := NewLineWriter(context.Background(), w, DefaultConfig())
	defer lw.Close()

	if err := lw.Encode(make(chan int)); err == nil {
		t.Fatal("expected an error for a channel")
	}
	if w.Body.Len() != 0 {
		t.Errorf("partial record written: %q", w.Body.String())
	}
	if err := lw.Encode(record{ID: 1}); err != nil {
		t.Errorf("stream unusable after a marshal error: %v", err)
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	errs := []error{ErrWriteTimeout, ErrIdleTimeout, ErrClientGone, ErrStreamClosed}
	for i, a := range errs {
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}
