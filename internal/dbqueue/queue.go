package dbqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"media-dedup/internal/config"
	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
)

// DefaultRetention is the number of write results kept for Result lookups.
const DefaultRetention = 10000

const (
	defaultRetryAttempts = 5
	defaultRetryBackoff  = 50 * time.Millisecond
	maxRetryBackoff      = 2 * time.Second
)

// Kind distinguishes reads from writes.
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// Status is the outcome of an operation as seen by Result.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusNotFound  Status = "not_found"
)

// OperationResult records how a queued operation ended.
type OperationResult struct {
	ID          uint64        `json:"id"`
	Kind        Kind          `json:"kind"`
	Status      Status        `json:"status"`
	Err         error         `json:"-"`
	Error       string        `json:"error,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completedAt,omitzero"`
}

// Success reports whether the operation ran without error.
func (r OperationResult) Success() bool {
	return r.Status == StatusSucceeded
}

type operation struct {
	id       uint64
	kind     Kind
	run      func(*sql.Conn) (any, error)
	complete func(OperationResult, any)
	queued   time.Time
}

// Queue runs database operations one at a time, in submission order, on a
// single connection.
type Queue struct {
	conn  *sql.Conn
	store *config.Store

	mu       sync.Mutex
	cond     *sync.Cond
	ops      []*operation
	inFlight bool
	stopped  bool
	idle     chan struct{} // closed while nothing is queued or running

	nextID        uint64
	lastCompleted uint64

	retention int
	results   map[uint64]OperationResult
	order     []uint64 // ring of retained write ids
	head      int

	done chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithRetention overrides how many write results are retained.
func WithRetention(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.retention = n
		}
	}
}

// New takes a dedicated connection from db and starts the worker. store
// supplies retry settings and the retention size; it may be nil.
func New(ctx context.Context, db *sql.DB, store *config.Store, opts ...Option) (*Queue, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve queue connection: %w", err)
	}

	retention := DefaultRetention
	if store != nil {
		retention = store.GetInt(config.KeyResultRetention, DefaultRetention)
	}

	q := &Queue{
		conn:      conn,
		store:     store,
		idle:      make(chan struct{}),
		retention: retention,
		results:   make(map[uint64]OperationResult),
		done:      make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	close(q.idle)

	for _, opt := range opts {
		opt(q)
	}
	if q.retention <= 0 {
		q.retention = DefaultRetention
	}
	q.order = make([]uint64, 0, min(q.retention, 1024))

	go q.worker()

	logging.Debug("Database queue started (result retention %d)", q.retention)
	return q, nil
}

// EnqueueWrite appends a write and returns its id without waiting for it to
// run. It returns 0 if the queue has been stopped.
func (q *Queue) EnqueueWrite(op func(*sql.Conn) error) uint64 {
	if op == nil {
		logging.Error("Database queue: nil write operation rejected")
		return 0
	}
	id, err := q.enqueue(&operation{
		kind: KindWrite,
		run: func(conn *sql.Conn) (any, error) {
			return nil, op(conn)
		},
	})
	if err != nil {
		logging.Warn("Database queue: write rejected: %v", err)
		return 0
	}
	return id
}

// Submit is EnqueueWrite for callers that want to wait on the outcome.
func (q *Queue) Submit(op func(*sql.Conn) error) *Future[struct{}] {
	if op == nil {
		return failedFuture[struct{}](ErrNilOperation)
	}
	f := newFuture[struct{}]()
	id, err := q.enqueue(&operation{
		kind: KindWrite,
		run: func(conn *sql.Conn) (any, error) {
			return struct{}{}, op(conn)
		},
		complete: func(r OperationResult, _ any) {
			f.resolve(struct{}{}, r.Err)
		},
	})
	if err != nil {
		f.resolve(struct{}{}, err)
	}
	f.id = id
	return f
}

// Read queues op behind everything already submitted and returns a Future
// for its value.
func Read[T any](q *Queue, op func(*sql.Conn) (T, error)) *Future[T] {
	if op == nil {
		return failedFuture[T](ErrNilOperation)
	}
	f := newFuture[T]()
	id, err := q.enqueue(&operation{
		kind: KindRead,
		run: func(conn *sql.Conn) (any, error) {
			return op(conn)
		},
		complete: func(r OperationResult, value any) {
			var v T
			if r.Err == nil {
				v, _ = value.(T)
			}
			f.resolve(v, r.Err)
		},
	})
	if err != nil {
		var zero T
		f.resolve(zero, err)
	}
	f.id = id
	return f
}

func (q *Queue) enqueue(op *operation) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return 0, ErrStopped
	}

	q.nextID++
	op.id = q.nextID
	op.queued = time.Now()

	if len(q.ops) == 0 && !q.inFlight {
		q.idle = make(chan struct{})
	}
	q.ops = append(q.ops, op)
	metrics.DBQueueDepth.Set(float64(len(q.ops)))
	q.cond.Signal()
	return op.id, nil
}

// Result returns the outcome of write id without blocking. Ids still queued
// report StatusPending; ids that are unknown or evicted report
// StatusNotFound with ErrNotFound.
func (q *Queue) Result(id uint64) OperationResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if r, ok := q.results[id]; ok {
		return r
	}
	if id > q.lastCompleted && id <= q.nextID {
		return OperationResult{ID: id, Status: StatusPending}
	}
	return OperationResult{ID: id, Status: StatusNotFound, Err: ErrNotFound, Error: ErrNotFound.Error()}
}

// Pending returns the number of operations waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Idle reports whether nothing is queued or running.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops) == 0 && !q.inFlight
}

// WaitForCompletion blocks until the queue is empty and no operation is
// running. When timeout elapses first it logs and keeps waiting. A timeout
// of zero or less waits silently.
func (q *Queue) WaitForCompletion(timeout time.Duration) {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	if timeout <= 0 {
		<-idle
		return
	}

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-idle:
			return
		case <-timer.C:
			logging.Warn("Database queue still draining after %v (%d pending), continuing to wait",
				time.Since(start).Round(time.Millisecond), q.Pending())
			timer.Reset(timeout)
		}
	}
}

// Stop lets the worker finish everything already queued, then waits for it
// to exit and releases the connection. It is safe to call more than once but
// must not be called from inside an operation.
func (q *Queue) Stop() {
	q.mu.Lock()
	first := !q.stopped
	q.stopped = true
	pending := len(q.ops)
	q.cond.Broadcast()
	q.mu.Unlock()

	if first {
		logging.Info("Stopping database queue (%d pending operations)", pending)
	}

	<-q.done
}

// Stopped reports whether Stop has been called.
func (q *Queue) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

func (q *Queue) worker() {
	defer func() {
		if err := q.conn.Close(); err != nil {
			logging.Warn("Database queue: failed to close connection: %v", err)
		}
		close(q.done)
	}()

	for {
		q.mu.Lock()
		for len(q.ops) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if len(q.ops) == 0 {
			q.mu.Unlock()
			logging.Debug("Database queue worker exiting")
			return
		}
		op := q.ops[0]
		q.ops[0] = nil
		q.ops = q.ops[1:]
		q.inFlight = true
		metrics.DBQueueDepth.Set(float64(len(q.ops)))
		q.mu.Unlock()

		metrics.DBQueueWaitDuration.Observe(time.Since(op.queued).Seconds())
		result, value := q.execute(op)

		q.mu.Lock()
		q.lastCompleted = op.id
		if op.kind == KindWrite {
			q.retainLocked(result)
		}
		q.mu.Unlock()

		if op.complete != nil {
			op.complete(result, value)
		}

		q.mu.Lock()
		q.inFlight = false
		if len(q.ops) == 0 {
			close(q.idle)
		}
		q.mu.Unlock()
	}
}

func (q *Queue) execute(op *operation) (OperationResult, any) {
	start := time.Now()
	attempts, backoff := q.retryPolicy(op.kind)

	var (
		value any
		err   error
		tries int
	)
	for tries = 1; ; tries++ {
		value, err = runSafely(op.run, q.conn)
		if err == nil || tries >= attempts || !isBusy(err) {
			break
		}
		metrics.DBQueueRetriesTotal.Inc()
		delay := min(backoff*time.Duration(1<<(tries-1)), maxRetryBackoff)
		logging.Debug("Database queue: operation %d busy, retry %d/%d in %v", op.id, tries, attempts-1, delay)
		time.Sleep(delay)
	}

	elapsed := time.Since(start)
	result := OperationResult{
		ID:          op.id,
		Kind:        op.kind,
		Status:      StatusSucceeded,
		Attempts:    tries,
		Duration:    elapsed,
		CompletedAt: time.Now(),
	}

	status := "success"
	if err != nil {
		status = "error"
		result.Status = StatusFailed
		result.Err = err
		result.Error = err.Error()
		logging.Warn("Database queue: %s operation %d failed: %v", op.kind, op.id, err)
	}
	metrics.DBQueueOperationsTotal.WithLabelValues(string(op.kind), status).Inc()
	metrics.DBQueueOperationDuration.WithLabelValues(string(op.kind)).Observe(elapsed.Seconds())

	return result, value
}

// retryPolicy reads the busy-retry settings. Reads are not retried.
func (q *Queue) retryPolicy(kind Kind) (int, time.Duration) {
	if kind != KindWrite {
		return 1, 0
	}
	attempts := defaultRetryAttempts
	backoff := defaultRetryBackoff
	if q.store != nil {
		attempts = q.store.GetInt(config.KeyDatabaseRetryAttempts, defaultRetryAttempts)
		backoff = time.Duration(q.store.GetInt(config.KeyDatabaseRetryBackoffMS, int(defaultRetryBackoff/time.Millisecond))) * time.Millisecond
	}
	if attempts < 1 {
		attempts = 1
	}
	return attempts, backoff
}

func (q *Queue) retainLocked(r OperationResult) {
	if len(q.order) < q.retention {
		q.order = append(q.order, r.ID)
	} else {
		delete(q.results, q.order[q.head])
		q.order[q.head] = r.ID
		q.head = (q.head + 1) % q.retention
	}
	q.results[r.ID] = r
	metrics.DBQueueResultsRetained.Set(float64(len(q.results)))
}

func runSafely(run func(*sql.Conn) (any, error), conn *sql.Conn) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return run(conn)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
