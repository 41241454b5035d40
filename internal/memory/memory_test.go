package memory

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"testing"
	"time"
)

// restoreMemoryLimit undoes any GOMEMLIMIT a test sets.
func restoreMemoryLimit(t *testing.T) {
	t.Helper()
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
}

func TestConfigureFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		ratio      string
		configured bool
		wantLimit  int64
		wantRatio  float64
	}{
		{name: "unset", limit: "", configured: false},
		{name: "bytes", limit: "1073741824", configured: true, wantLimit: 1073741824, wantRatio: DefaultMemoryRatio},
		{name: "humanized", limit: "2GiB", configured: true, wantLimit: 2 << 30, wantRatio: DefaultMemoryRatio},
		{name: "custom ratio", limit: "1000000000", ratio: "0.5", configured: true, wantLimit: 1000000000, wantRatio: 0.5},
		{name: "ratio out of range", limit: "1000000000", ratio: "1.5", configured: true, wantLimit: 1000000000, wantRatio: DefaultMemoryRatio},
		{name: "ratio not a number", limit: "1000000000", ratio: "half", configured: true, wantLimit: 1000000000, wantRatio: DefaultMemoryRatio},
		{name: "garbage", limit: "lots", configured: false},
		{name: "negative", limit: "-100", configured: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreMemoryLimit(t)
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			result := ConfigureFromEnv()
			if result.Configured != tt.configured {
				t.Fatalf("Configured = %v, want %v", result.Configured, tt.configured)
			}
			if !tt.configured {
				if result.Source != "none" {
					t.Errorf("Source = %q, want none", result.Source)
				}
				return
			}
			if result.Source != "MEMORY_LIMIT" {
				t.Errorf("Source = %q, want MEMORY_LIMIT", result.Source)
			}
			if result.ContainerLimit != tt.wantLimit {
				t.Errorf("ContainerLimit = %d, want %d", result.ContainerLimit, tt.wantLimit)
			}
			if result.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %v, want %v", result.Ratio, tt.wantRatio)
			}
			want := int64(float64(tt.wantLimit) * tt.wantRatio)
			if result.GoMemLimit != want {
				t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, want)
			}
			if got := debug.SetMemoryLimit(-1); got != want {
				t.Errorf("runtime memory limit = %d, want %d", got, want)
			}
		})
	}
}

func TestConfigureFromEnv_GOMEMLIMITTakesPrecedence(t *testing.T) {
	restoreMemoryLimit(t)
	debug.SetMemoryLimit(512 << 20)
	t.Setenv("GOMEMLIMIT", "512MiB")
	t.Setenv("MEMORY_LIMIT", "1073741824")

	result := ConfigureFromEnv()
	if result.Source != "GOMEMLIMIT" {
		t.Fatalf("Source = %q, want GOMEMLIMIT", result.Source)
	}
	if result.GoMemLimit != 512<<20 {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, 512<<20)
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{1 << 30, "1.0 GiB"},
		{-1024, "-1.0 KiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestMonitor(alloc *uint64) *Monitor {
	m := NewMonitor(Config{
		MemoryLimitBytes:  1000,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     time.Hour,
	})
	m.readStats = func() uint64 { return *alloc }
	return m
}

func TestMonitorPausesAndResumes(t *testing.T) {
	var alloc uint64 = 500
	m := newTestMonitor(&alloc)
	defer m.Stop()

	m.checkMemory()
	if m.IsPaused() {
		t.Fatal("paused at 50%")
	}

	alloc = 900
	m.checkMemory()
	if !m.IsPaused() {
		t.Fatal("not paused at 90%")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	// Between the marks: stays paused.
	alloc = 800
	m.checkMemory()
	if !m.IsPaused() {
		t.Fatal("resumed above the high water mark")
	}

	alloc = 100
	m.checkMemory()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after recovery")
	}

	current, limit, usage := m.GetStats()
	if current != 100 || limit != 1000 || math.Abs(usage-0.1) > 1e-9 {
		t.Errorf("GetStats = (%d, %d, %v)", current, limit, usage)
	}
}

func TestMonitorWaitHonorsContext(t *testing.T) {
	var alloc uint64 = 950
	m := newTestMonitor(&alloc)
	defer m.Stop()
	m.checkMemory()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	var alloc uint64 = 950
	m := newTestMonitor(&alloc)
	m.checkMemory()

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()
	m.Stop()
	m.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}

func TestMonitorWithoutLimitNeverPauses(t *testing.T) {
	restoreMemoryLimit(t)
	debug.SetMemoryLimit(math.MaxInt64)

	m := NewMonitor(DefaultConfig())
	m.Start()
	defer m.Stop()

	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if _, limit, usage := m.GetStats(); limit != 0 || usage != 0 {
		t.Errorf("GetStats limit=%d usage=%v, want zeros", limit, usage)
	}
}
