package pool

import (
	"context"
	"fmt"
	"sync"

	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
	"media-dedup/internal/workers"
)

// State is the lifecycle state of a Pool.
type State int

const (
	// Uninitialized pools reject Acquire.
	Uninitialized State = iota
	// Initialized pools lend handles.
	Initialized
	// Resizing pools are creating handles for a grow; they still lend.
	Resizing
	// Shutdown pools destroy every handle they get back.
	Shutdown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Resizing:
		return "resizing"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Bounds is the inclusive range of sizes a pool accepts.
type Bounds struct {
	Min int
	Max int
}

// Contains reports whether n lies within the bounds.
func (b Bounds) Contains(n int) bool {
	return n >= b.Min && n <= b.Max
}

var (
	// ConnectionBounds limits database connection pools.
	ConnectionBounds = Bounds{Min: 1, Max: 32}
	// ThreadBounds limits worker token pools.
	ThreadBounds = Bounds{Min: 1, Max: 64}
)

// Factory creates a new pool handle.
type Factory[T comparable] func() (T, error)

type waiter[T comparable] struct {
	ch chan T
}

// Pool lends a resizable set of interchangeable handles.
//
// Shrinking follows one accounting rule: capacity drops immediately, idle
// handles are destroyed immediately, and handles on loan beyond the new
// capacity are destroyed when they are released. Available()+Active() always
// equals Capacity(); Excess() counts the loans that will be discarded.
type Pool[T comparable] struct {
	name    string
	bounds  Bounds
	factory Factory[T]
	destroy func(T)

	// resizeMu serializes Initialize, Resize and Shutdown so only one
	// of them creates or destroys handles at a time.
	resizeMu sync.Mutex

	mu       sync.Mutex
	state    State
	capacity int
	idle     []T
	loaned   map[T]struct{}
	excess   int
	waiters  []*waiter[T]
}

// Option configures a Pool.
type Option[T comparable] func(*Pool[T])

// WithDestroy sets the function called for every handle the pool discards.
func WithDestroy[T comparable](fn func(T)) Option[T] {
	return func(p *Pool[T]) { p.destroy = fn }
}

// New creates an uninitialized pool. It panics on a nil factory.
func New[T comparable](name string, bounds Bounds, factory Factory[T], opts ...Option[T]) *Pool[T] {
	if factory == nil {
		panic(ErrNilFactory)
	}
	p := &Pool[T]{
		name:    name,
		bounds:  bounds,
		factory: factory,
		loaned:  make(map[T]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pool name used in logs and metrics.
func (p *Pool[T]) Name() string { return p.name }

// Bounds returns the accepted size range.
func (p *Pool[T]) Bounds() Bounds { return p.bounds }

// State returns the current lifecycle state.
func (p *Pool[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Capacity returns the target number of handles.
func (p *Pool[T]) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Available returns the number of idle handles.
func (p *Pool[T]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Active returns the number of in-capacity handles on loan.
func (p *Pool[T]) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loaned) - p.excess
}

// Excess returns the number of loaned handles that will be destroyed on
// release because the pool shrank while they were out.
func (p *Pool[T]) Excess() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.excess
}

// Initialize creates n handles. Calling it on an initialized pool logs and
// succeeds without changing anything.
func (p *Pool[T]) Initialize(n int) error {
	p.resizeMu.Lock()
	defer p.resizeMu.Unlock()
	return p.initialize(n)
}

func (p *Pool[T]) initialize(n int) error {
	if !p.bounds.Contains(n) {
		return fmt.Errorf("%w: %s size %d not in [%d,%d]", ErrInvalidSize, p.name, n, p.bounds.Min, p.bounds.Max)
	}

	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	switch state {
	case Shutdown:
		return ErrShutdown
	case Initialized, Resizing:
		logging.Debug("Pool %s already initialized, ignoring Initialize(%d)", p.name, n)
		return nil
	}

	workers.Advise(p.name, n)
	handles, err := p.create(n)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.idle = append(p.idle, handles...)
	p.capacity = n
	p.state = Initialized
	p.updateMetricsLocked()
	p.mu.Unlock()

	logging.Info("Pool %s initialized with %d handles", p.name, n)
	return nil
}

// Resize changes the number of handles. An uninitialized pool is initialized.
// A failed grow leaves the pool at its previous size.
func (p *Pool[T]) Resize(n int) error {
	p.resizeMu.Lock()
	defer p.resizeMu.Unlock()

	if !p.bounds.Contains(n) {
		return fmt.Errorf("%w: %s size %d not in [%d,%d]", ErrInvalidSize, p.name, n, p.bounds.Min, p.bounds.Max)
	}

	p.mu.Lock()
	state, current := p.state, p.capacity
	p.mu.Unlock()

	switch {
	case state == Shutdown:
		return ErrShutdown
	case state == Uninitialized:
		return p.initialize(n)
	case n == current:
		return nil
	case n > current:
		return p.grow(current, n)
	default:
		p.shrink(current, n)
		return nil
	}
}

func (p *Pool[T]) grow(from, to int) error {
	workers.Advise(p.name, to)

	p.mu.Lock()
	need := to - from
	// Loans already marked for discard can simply be kept.
	reclaim := min(p.excess, need)
	p.excess -= reclaim
	need -= reclaim
	p.state = Resizing
	p.mu.Unlock()

	handles, err := p.create(need)
	if err != nil {
		p.mu.Lock()
		doomed := p.retireLocked(reclaim)
		p.state = Initialized
		p.updateMetricsLocked()
		p.mu.Unlock()
		p.destroyAll(doomed)
		return err
	}

	p.mu.Lock()
	p.capacity = to
	p.state = Initialized
	for _, h := range handles {
		p.putLocked(h)
	}
	p.updateMetricsLocked()
	p.mu.Unlock()

	logging.Info("Pool %s resized %d -> %d", p.name, from, to)
	return nil
}

func (p *Pool[T]) shrink(from, to int) {
	p.mu.Lock()
	doomed := p.retireLocked(from - to)
	p.capacity = to
	p.updateMetricsLocked()
	excess := p.excess
	p.mu.Unlock()

	p.destroyAll(doomed)
	logging.Info("Pool %s resized %d -> %d (%d on loan will be retired)", p.name, from, to, excess)
}

// retireLocked takes n handles out of service: idle ones are returned for
// destruction and the remainder is marked as excess loans.
func (p *Pool[T]) retireLocked(n int) []T {
	k := min(n, len(p.idle))
	doomed := make([]T, k)
	copy(doomed, p.idle[len(p.idle)-k:])
	p.idle = p.idle[:len(p.idle)-k]
	p.excess += n - k
	return doomed
}

// create builds n handles, destroying any already built if one fails.
func (p *Pool[T]) create(n int) ([]T, error) {
	handles := make([]T, 0, n)
	for i := 0; i < n; i++ {
		h, err := p.factory()
		if err != nil {
			p.destroyAll(handles)
			metrics.PoolFactoryFailures.WithLabelValues(p.name).Inc()
			return nil, fmt.Errorf("%w: %s: %v", ErrFactory, p.name, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (p *Pool[T]) destroyAll(handles []T) {
	if p.destroy == nil {
		return
	}
	for _, h := range handles {
		p.destroy(h)
	}
}

// Acquire blocks until a handle is available. It fails only when the pool is
// not initialized or has been shut down.
func (p *Pool[T]) Acquire() (T, error) {
	return p.AcquireContext(context.Background())
}

// AcquireContext is Acquire bounded by ctx.
func (p *Pool[T]) AcquireContext(ctx context.Context) (T, error) {
	var zero T

	p.mu.Lock()
	switch p.state {
	case Uninitialized:
		p.mu.Unlock()
		return zero, ErrNotInitialized
	case Shutdown:
		p.mu.Unlock()
		return zero, ErrShutdown
	}
	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.loaned[h] = struct{}{}
		p.updateMetricsLocked()
		p.mu.Unlock()
		return h, nil
	}
	w := &waiter[T]{ch: make(chan T, 1)}
	p.waiters = append(p.waiters, w)
	metrics.PoolWaiters.WithLabelValues(p.name).Set(float64(len(p.waiters)))
	p.mu.Unlock()

	select {
	case h, ok := <-w.ch:
		if !ok {
			return zero, ErrShutdown
		}
		return h, nil
	case <-ctx.Done():
		p.mu.Lock()
		removed := p.removeWaiterLocked(w)
		p.mu.Unlock()
		if !removed {
			// A handle was handed over between the wakeup and the lock.
			if h, ok := <-w.ch; ok {
				p.Release(h)
			}
		}
		return zero, ctx.Err()
	}
}

// Release returns a handle to the pool, waking one waiter if any. Unknown or
// already released handles are logged and ignored.
func (p *Pool[T]) Release(h T) {
	p.mu.Lock()
	if _, ok := p.loaned[h]; !ok {
		p.mu.Unlock()
		logging.Warn("Pool %s: ignoring release of a handle that is not on loan", p.name)
		return
	}
	delete(p.loaned, h)

	if p.state == Shutdown || p.excess > 0 {
		if p.excess > 0 {
			p.excess--
		}
		p.updateMetricsLocked()
		p.mu.Unlock()
		p.destroyAll([]T{h})
		return
	}
	p.putLocked(h)
	p.updateMetricsLocked()
	p.mu.Unlock()
}

// With acquires a handle, runs fn with it and releases it.
func (p *Pool[T]) With(ctx context.Context, fn func(T) error) error {
	h, err := p.AcquireContext(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h)
}

// putLocked hands h to the oldest waiter or parks it as idle.
func (p *Pool[T]) putLocked(h T) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		metrics.PoolWaiters.WithLabelValues(p.name).Set(float64(len(p.waiters)))
		p.loaned[h] = struct{}{}
		w.ch <- h
		return
	}
	p.idle = append(p.idle, h)
}

func (p *Pool[T]) removeWaiterLocked(w *waiter[T]) bool {
	for i, other := range p.waiters {
		if other == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			metrics.PoolWaiters.WithLabelValues(p.name).Set(float64(len(p.waiters)))
			return true
		}
	}
	return false
}

// Shutdown destroys idle handles and fails pending and future acquires.
// Handles still on loan are destroyed when released. It is idempotent.
func (p *Pool[T]) Shutdown() {
	p.resizeMu.Lock()
	defer p.resizeMu.Unlock()

	p.mu.Lock()
	if p.state == Shutdown {
		p.mu.Unlock()
		return
	}
	p.state = Shutdown
	idle := p.idle
	p.idle = nil
	for _, w := range p.waiters {
		close(w.ch)
	}
	p.waiters = nil
	p.capacity = 0
	p.excess = 0
	p.updateMetricsLocked()
	loaned := len(p.loaned)
	p.mu.Unlock()

	p.destroyAll(idle)
	logging.Info("Pool %s shut down (%d handles still on loan)", p.name, loaned)
}

func (p *Pool[T]) updateMetricsLocked() {
	metrics.PoolCapacity.WithLabelValues(p.name).Set(float64(p.capacity))
	metrics.PoolAvailable.WithLabelValues(p.name).Set(float64(len(p.idle)))
	metrics.PoolActive.WithLabelValues(p.name).Set(float64(len(p.loaned) - p.excess))
}
