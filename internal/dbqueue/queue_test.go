package dbqueue

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"

	"media-dedup/internal/config"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "queue.db")+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, value INTEGER NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func newTestQueue(t *testing.T, store *config.Store, opts ...Option) (*Queue, *sql.DB) {
	t.Helper()

	db := openTestDB(t)
	q, err := New(context.Background(), db, store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(q.Stop)
	return q, db
}

func insert(value int) func(*sql.Conn) error {
	return func(conn *sql.Conn) error {
		_, err := conn.ExecContext(context.Background(), `INSERT INTO items (value) VALUES (?)`, value)
		return err
	}
}

func readValues(conn *sql.Conn) ([]int, error) {
	rows, err := conn.QueryContext(context.Background(), `SELECT value FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func TestQueue_WritesThenReadInOrder(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)

	first := q.EnqueueWrite(insert(1))
	second := q.EnqueueWrite(insert(2))
	if first == 0 || second <= first {
		t.Fatalf("ids not strictly increasing: %d, %d", first, second)
	}

	values, err := Read(q, readValues).Get()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(values) != 2 || values[0] != 1 || values[1] != 2 {
		t.Errorf("values = %v, want [1 2]", values)
	}

	for _, id := range []uint64{first, second} {
		if r := q.Result(id); !r.Success() {
			t.Errorf("Result(%d) = %+v, want success", id, r)
		}
	}
}

func TestQueue_SingleTotalOrder(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)

	var (
		mu    sync.Mutex
		order []int
	)
	record := func(n int) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}

	var futures []*Future[int]
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			q.EnqueueWrite(func(*sql.Conn) error {
				record(i)
				return nil
			})
		} else {
			futures = append(futures, Read(q, func(*sql.Conn) (int, error) {
				record(i)
				return i, nil
			}))
		}
	}
	for _, f := range futures {
		if _, err := f.Get(); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	q.WaitForCompletion(0)

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("order = %v, want 0..19", order)
		}
	}
}

func TestQueue_FailuresBecomeResults(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)
	boom := errors.New("boom")

	failed := q.EnqueueWrite(func(*sql.Conn) error { return boom })
	panicked := q.EnqueueWrite(func(*sql.Conn) error { panic("bad operation") })
	ok := q.EnqueueWrite(insert(7))

	_, readErr := Read(q, func(*sql.Conn) (int, error) { panic("bad read") }).Get()
	if !errors.Is(readErr, ErrPanic) {
		t.Errorf("read error = %v, want ErrPanic", readErr)
	}

	if r := q.Result(failed); r.Status != StatusFailed || !errors.Is(r.Err, boom) {
		t.Errorf("Result(failed) = %+v, want failure wrapping boom", r)
	}
	if r := q.Result(panicked); r.Status != StatusFailed || !errors.Is(r.Err, ErrPanic) {
		t.Errorf("Result(panicked) = %+v, want failure wrapping ErrPanic", r)
	}
	if r := q.Result(ok); !r.Success() {
		t.Errorf("worker did not survive the failures: %+v", r)
	}
}

func TestQueue_ResultUnknownID(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)

	r := q.Result(12345)
	if r.Status != StatusNotFound || !errors.Is(r.Err, ErrNotFound) {
		t.Errorf("Result(unknown) = %+v, want not found", r)
	}
}

func TestQueue_ResultPending(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)

	release := make(chan struct{})
	blocker := q.EnqueueWrite(func(*sql.Conn) error {
		<-release
		return nil
	})
	queued := q.EnqueueWrite(insert(1))

	if r := q.Result(queued); r.Status != StatusPending {
		t.Errorf("Result(queued) = %+v, want pending", r)
	}

	close(release)
	q.WaitForCompletion(0)

	if r := q.Result(blocker); !r.Success() {
		t.Errorf("Result(blocker) = %+v, want success", r)
	}
}

func TestQueue_RetentionEvictsOldest(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil, WithRetention(3))

	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, q.EnqueueWrite(insert(i)))
	}
	q.WaitForCompletion(0)

	for i, id := range ids {
		r := q.Result(id)
		if i < 2 && r.Status != StatusNotFound {
			t.Errorf("Result(%d) = %s, want evicted", id, r.Status)
		}
		if i >= 2 && !r.Success() {
			t.Errorf("Result(%d) = %s, want retained success", id, r.Status)
		}
	}
}

func TestQueue_RetentionFromStore(t *testing.T) {
	t.Parallel()

	store := config.NewStore(nil)
	if _, err := store.Set(config.KeyResultRetention, 2); err != nil {
		t.Fatalf("Set: %v", err)
	}

	q, _ := newTestQueue(t, store)
	if q.retention != 2 {
		t.Errorf("retention = %d, want 2", q.retention)
	}
}

func TestQueue_StopDrainsQueuedWork(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	q, err := New(context.Background(), db, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	release := make(chan struct{})
	q.EnqueueWrite(func(*sql.Conn) error {
		<-release
		return nil
	})

	var ids []uint64
	for i := 0; i < 50; i++ {
		ids = append(ids, q.EnqueueWrite(insert(i)))
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while operations were still queued")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped

	for _, id := range ids {
		if r := q.Result(id); !r.Success() {
			t.Fatalf("Result(%d) = %+v after drain", id, r)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 50 {
		t.Errorf("rows = %d, want 50", count)
	}

	// Second Stop returns immediately.
	q.Stop()
}

func TestQueue_EnqueueAfterStop(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)
	q.Stop()

	if id := q.EnqueueWrite(insert(1)); id != 0 {
		t.Errorf("EnqueueWrite after Stop = %d, want 0", id)
	}
	if _, err := Read(q, readValues).Get(); !errors.Is(err, ErrStopped) {
		t.Errorf("Read after Stop error = %v, want ErrStopped", err)
	}
	if _, err := q.Submit(insert(1)).Get(); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Stop error = %v, want ErrStopped", err)
	}
}

func TestQueue_WaitForCompletionKeepsWaitingPastTimeout(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)

	release := make(chan struct{})
	q.EnqueueWrite(func(*sql.Conn) error {
		<-release
		return nil
	})

	returned := make(chan struct{})
	go func() {
		q.WaitForCompletion(5 * time.Millisecond)
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("WaitForCompletion returned before the queue drained")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForCompletion did not return after the queue drained")
	}

	if !q.Idle() {
		t.Error("queue not idle after WaitForCompletion")
	}
}

func TestQueue_RetriesBusyWrites(t *testing.T) {
	t.Parallel()

	store := config.NewStore(nil)
	if _, err := store.Update(map[string]any{
		config.KeyDatabaseRetryAttempts:  4,
		config.KeyDatabaseRetryBackoffMS: 1,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	q, _ := newTestQueue(t, store)

	calls := 0
	id := q.EnqueueWrite(func(*sql.Conn) error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	q.WaitForCompletion(0)

	r := q.Result(id)
	if !r.Success() || r.Attempts != 3 {
		t.Errorf("Result = %+v, want success after 3 attempts", r)
	}

	// Non-busy errors and exhausted attempts are not retried further.
	always := q.EnqueueWrite(func(*sql.Conn) error { return sqlite3.Error{Code: sqlite3.ErrBusy} })
	q.WaitForCompletion(0)
	if r := q.Result(always); r.Success() || r.Attempts != 4 {
		t.Errorf("Result = %+v, want failure after 4 attempts", r)
	}
}

func TestFuture_GetContext(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t, nil)

	release := make(chan struct{})
	defer close(release)
	f := Read(q, func(*sql.Conn) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.GetContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetContext error = %v, want deadline exceeded", err)
	}
}
