package scheduler

import (
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"media-dedup/internal/config"
	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
)

const (
	// DefaultTick is how often the loop checks whether a task is due.
	DefaultTick = 10 * time.Second

	defaultScanInterval    = 1800
	defaultProcessInterval = 300
)

// Task names used in logs and metrics.
const (
	TaskScan    = "scan"
	TaskProcess = "process"
)

type task struct {
	name    string
	key     string
	def     int
	fn      func()
	lastRun time.Time
	pending atomic.Bool
}

// Scheduler invokes the scan and process callbacks on their configured
// intervals.
type Scheduler struct {
	store *config.Store
	tick  time.Duration

	mu      sync.Mutex // guards callbacks and lastRun
	scan    *task
	process *task

	lifecycleMu sync.Mutex
	running     atomic.Bool
	stopChan    chan struct{}
	done        chan struct{}
	wake        chan struct{}
}

// New creates a scheduler reading intervals from store. A tick of zero or
// less uses DefaultTick.
func New(store *config.Store, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		store:   store,
		tick:    tick,
		scan:    &task{name: TaskScan, key: config.KeyScanInterval, def: defaultScanInterval},
		process: &task{name: TaskProcess, key: config.KeyProcessingInterval, def: defaultProcessInterval},
		wake:    make(chan struct{}, 1),
	}
}

// SetScanCallback sets the function run when a scan is due.
func (s *Scheduler) SetScanCallback(fn func()) {
	s.mu.Lock()
	s.scan.fn = fn
	s.mu.Unlock()
}

// SetProcessCallback sets the function run when processing is due.
func (s *Scheduler) SetProcessCallback(fn func()) {
	s.mu.Lock()
	s.process.fn = fn
	s.mu.Unlock()
}

// Start launches the loop. Starting a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	logging.Info("Scheduler started (tick %v, scan every %ds, process every %ds)",
		s.tick, s.interval(s.scan), s.interval(s.process))
	metrics.SchedulerRunning.Set(1)

	go s.loop(s.stopChan, s.done)
}

// Stop ends the loop and waits for it to exit, including any callback in
// progress. It must not be called from a callback.
func (s *Scheduler) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopChan)
	<-s.done

	metrics.SchedulerRunning.Set(0)
	logging.Info("Scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// TriggerScan asks for a scan as soon as the loop is free.
func (s *Scheduler) TriggerScan() {
	s.scan.pending.Store(true)
	s.poke()
}

// TriggerProcess asks for a processing pass as soon as the loop is free.
func (s *Scheduler) TriggerProcess() {
	s.process.pending.Store(true)
	s.poke()
}

// LastRun returns when the named task last started, or the zero time.
func (s *Scheduler) LastRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case TaskScan:
		return s.scan.lastRun
	case TaskProcess:
		return s.process.lastRun
	}
	return time.Time{}
}

// OnConfigUpdate implements config.Observer. New intervals take effect on
// the next evaluation; the loop is woken so that happens right away.
func (s *Scheduler) OnConfigUpdate(event config.UpdateEvent) {
	if !event.Has(config.KeyScanInterval, config.KeyProcessingInterval) {
		return
	}
	logging.Info("Scheduler intervals updated: scan every %ds, process every %ds",
		s.interval(s.scan), s.interval(s.process))
	s.poke()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.evaluate()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.evaluate()
		case <-s.wake:
			s.evaluate()
		}
	}
}

// evaluate runs requested tasks first, then tasks whose interval elapsed.
func (s *Scheduler) evaluate() {
	for _, t := range []*task{s.scan, s.process} {
		if t.pending.Swap(false) {
			s.run(t, "manual")
		} else if s.due(t, time.Now()) {
			s.run(t, "interval")
		}
	}
}

func (s *Scheduler) due(t *task, now time.Time) bool {
	interval := s.interval(t)
	if interval <= 0 {
		return false
	}
	s.mu.Lock()
	last := t.lastRun
	s.mu.Unlock()
	return last.IsZero() || now.Sub(last) >= IntervalDuration(interval)
}

// maxIntervalSeconds is the longest interval a time.Duration can hold.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// IntervalDuration converts an interval in seconds to a duration, saturating
// instead of overflowing.
func IntervalDuration(seconds int) time.Duration {
	if int64(seconds) > maxIntervalSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(seconds) * time.Second
}

func (s *Scheduler) interval(t *task) int {
	if s.store == nil {
		return t.def
	}
	return s.store.GetInt(t.key, t.def)
}

func (s *Scheduler) run(t *task, trigger string) {
	s.mu.Lock()
	fn := t.fn
	t.lastRun = time.Now()
	s.mu.Unlock()

	if fn == nil {
		return
	}

	logging.Debug("Scheduler running %s (%s)", t.name, trigger)
	metrics.SchedulerRunsTotal.WithLabelValues(t.name, trigger).Inc()
	metrics.SchedulerLastRunTimestamp.WithLabelValues(t.name).Set(float64(time.Now().Unix()))

	defer func() {
		if r := recover(); r != nil {
			metrics.SchedulerCallbackFailures.WithLabelValues(t.name).Inc()
			logging.Error("Scheduler %s callback panicked: %v\n%s", t.name, r, debug.Stack())
		}
	}()
	fn()
}
