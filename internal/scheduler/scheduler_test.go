package scheduler

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"media-dedup/internal/config"
)

func newStore(t *testing.T, scanSeconds, processSeconds int) *config.Store {
	t.Helper()
	store := config.NewStore(nil)
	if _, err := store.Update(map[string]any{
		config.KeyScanInterval:       scanSeconds,
		config.KeyProcessingInterval: processSeconds,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScheduler_RunsBothTasksOnStart(t *testing.T) {
	t.Parallel()

	s := New(newStore(t, 3600, 3600), 10*time.Millisecond)

	var scans, processes atomic.Int32
	s.SetScanCallback(func() { scans.Add(1) })
	s.SetProcessCallback(func() { processes.Add(1) })

	s.Start()
	defer s.Stop()

	waitFor(t, "first runs", func() bool { return scans.Load() == 1 && processes.Load() == 1 })

	// Long intervals: later ticks must not run anything.
	time.Sleep(100 * time.Millisecond)
	if scans.Load() != 1 || processes.Load() != 1 {
		t.Errorf("runs = %d scans, %d processes; want 1 each", scans.Load(), processes.Load())
	}
	if s.LastRun(TaskScan).IsZero() {
		t.Error("LastRun(scan) not recorded")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := New(newStore(t, 3600, 3600), 10*time.Millisecond)
	if s.IsRunning() {
		t.Fatal("new scheduler reports running")
	}

	s.Start()
	s.Start()
	if !s.IsRunning() {
		t.Fatal("scheduler not running after Start")
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Fatal("scheduler running after Stop")
	}

	// Restart after a stop.
	var scans atomic.Int32
	s.SetScanCallback(func() { scans.Add(1) })
	s.Start()
	defer s.Stop()
	waitFor(t, "scan after restart", func() bool { return scans.Load() >= 1 })
}

func TestScheduler_PanickingCallbackDoesNotStopLoop(t *testing.T) {
	t.Parallel()

	s := New(newStore(t, 3600, 3600), 10*time.Millisecond)

	var scans, processes atomic.Int32
	s.SetScanCallback(func() {
		scans.Add(1)
		panic("scan failed")
	})
	s.SetProcessCallback(func() { processes.Add(1) })

	s.Start()
	defer s.Stop()

	waitFor(t, "first pass", func() bool { return scans.Load() == 1 && processes.Load() == 1 })

	s.TriggerScan()
	waitFor(t, "second scan", func() bool { return scans.Load() == 2 })
	if !s.IsRunning() {
		t.Error("scheduler stopped after panicking callback")
	}
}

func TestScheduler_TriggerProcess(t *testing.T) {
	t.Parallel()

	s := New(newStore(t, 3600, 3600), time.Hour)

	var processes atomic.Int32
	s.SetProcessCallback(func() { processes.Add(1) })
	s.Start()
	defer s.Stop()

	waitFor(t, "initial process", func() bool { return processes.Load() == 1 })

	s.TriggerProcess()
	waitFor(t, "triggered process", func() bool { return processes.Load() == 2 })
}

func TestScheduler_IntervalsReadFromStore(t *testing.T) {
	t.Parallel()

	store := newStore(t, 0, 0)
	s := New(store, 10*time.Millisecond)
	store.Bus().Subscribe(s)

	var scans atomic.Int32
	s.SetScanCallback(func() { scans.Add(1) })
	s.Start()
	defer s.Stop()

	// Zero disables the task.
	time.Sleep(50 * time.Millisecond)
	if scans.Load() != 0 {
		t.Fatalf("scans = %d with interval 0, want 0", scans.Load())
	}

	if _, err := store.Set(config.KeyScanInterval, 3600); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitFor(t, "scan after interval change", func() bool { return scans.Load() == 1 })
}

func TestScheduler_StopWaitsForCallback(t *testing.T) {
	t.Parallel()

	s := New(newStore(t, 3600, 0), 10*time.Millisecond)

	started := make(chan struct{})
	var finished atomic.Bool
	s.SetScanCallback(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})
	s.Start()
	<-started

	s.Stop()
	if !finished.Load() {
		t.Error("Stop returned before the running callback finished")
	}
}

func TestIntervalDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 0},
		{-5, -5 * time.Second},
		{60, time.Minute},
		{int(maxIntervalSeconds), time.Duration(maxIntervalSeconds) * time.Second},
		{int(maxIntervalSeconds) + 1, time.Duration(math.MaxInt64)},
		{math.MaxInt, time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		if got := IntervalDuration(tt.seconds); got != tt.want {
			t.Errorf("IntervalDuration(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestScheduler_HugeIntervalRunsOnce(t *testing.T) {
	t.Parallel()

	s := New(newStore(t, math.MaxInt, math.MaxInt), 10*time.Millisecond)

	var scans, processes atomic.Int32
	s.SetScanCallback(func() { scans.Add(1) })
	s.SetProcessCallback(func() { processes.Add(1) })

	s.Start()
	defer s.Stop()

	waitFor(t, "first runs", func() bool { return scans.Load() == 1 && processes.Load() == 1 })

	time.Sleep(100 * time.Millisecond)
	if scans.Load() != 1 || processes.Load() != 1 {
		t.Errorf("runs = %d scans, %d processes; want 1 each", scans.Load(), processes.Load())
	}
}
