package metrics

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStats struct {
	calls atomic.Int32
	stats Stats
}

func (f *fakeStats) GetStats() Stats {
	f.calls.Add(1)
	return f.stats
}

func TestCollectorCollectsImmediately(t *testing.T) {
	provider := &fakeStats{stats: Stats{
		Mode:             "fast",
		TotalFiles:       10,
		FilesByCategory:  map[string]int{"images": 7, "videos": 3},
		ExactGroups:      2,
		SimilarGroups:    1,
		DuplicateFiles:   5,
		ReclaimableBytes: 4096,
	}}
	c := NewCollector(provider, "", time.Hour)
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for provider.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if provider.calls.Load() == 0 {
		t.Fatal("collector did not collect on start")
	}

	deadline = time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(ReclaimableBytes.WithLabelValues("fast")) != 4096 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := testutil.ToFloat64(DuplicateGroups.WithLabelValues("fast", "exact")); got != 2 {
		t.Errorf("exact groups = %v, want 2", got)
	}
	if got := testutil.ToFloat64(MediaFilesTotal.WithLabelValues("images")); got != 7 {
		t.Errorf("images = %v, want 7", got)
	}
}

func TestCollectorNilProvider(_ *testing.T) {
	c := NewCollector(nil, "", 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}

func TestCollectDBSize(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "dedup.db")
	if err := os.WriteFile(dbPath, make([]byte, 1024), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dbPath+"-wal", make([]byte, 512), 0o644); err != nil {
		t.Fatal(err)
	}

	collectDBSize(dbPath)

	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("main")); got != 1024 {
		t.Errorf("main size = %v, want 1024", got)
	}
	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("wal")); got != 512 {
		t.Errorf("wal size = %v, want 512", got)
	}
	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("shm")); got != 0 {
		t.Errorf("missing shm size = %v, want 0", got)
	}
}

func TestCollectDBSizeEmptyPath(_ *testing.T) {
	collectDBSize("")
}
