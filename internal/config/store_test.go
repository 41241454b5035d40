package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []UpdateEvent
}

func (r *recordingObserver) OnConfigUpdate(ev UpdateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingObserver) last() UpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestStoreLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json", `{"server_port": 8080, "threading": {"database_threads": 4}}`)

	store := NewStore(nil)
	obs := &recordingObserver{}
	store.Bus().Subscribe(obs)

	if !store.Load(path) {
		t.Fatal("Load() = false, want true")
	}
	if got := store.GetInt(KeyServerPort, 0); got != 8080 {
		t.Errorf("server_port = %d, want 8080", got)
	}
	if got := store.GetInt(KeyDatabaseThreads, 0); got != 4 {
		t.Errorf("database_threads = %d, want 4", got)
	}
	if obs.count() != 1 {
		t.Fatalf("notifications = %d, want 1", obs.count())
	}
	want := []string{"server_port", "threading.database_threads"}
	if got := obs.last().ChangedKeys; !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedKeys = %v, want %v", got, want)
	}
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
}

func TestStoreLoadFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{"server_port": 8080}`)
	bad := writeFile(t, dir, "bad.json", `{"server_port": `)

	store := NewStore(nil)
	if !store.Load(good) {
		t.Fatal("Load(good) = false")
	}
	before := store.Snapshot()

	if store.Load(bad) {
		t.Error("Load(bad) = true, want false")
	}
	if store.Load(filepath.Join(dir, "missing.json")) {
		t.Error("Load(missing) = true, want false")
	}
	if store.Snapshot() != before {
		t.Error("snapshot replaced after failed load")
	}
	if _, err := store.LoadFile(bad); !errors.Is(err, ErrParse) {
		t.Errorf("LoadFile(bad) error = %v, want ErrParse", err)
	}
}

func TestStoreLoadYAMLMergesDefaults(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.yaml", "server_port: 9000\ndedup_mode: quality\n")

	store := NewStore(nil, WithDefaults(Defaults()))
	if !store.Load(path) {
		t.Fatal("Load() = false")
	}
	if got := store.GetInt(KeyServerPort, 0); got != 9000 {
		t.Errorf("server_port = %d, want 9000", got)
	}
	if got := store.GetString(KeyDedupMode, ""); got != "quality" {
		t.Errorf("dedup_mode = %q, want quality", got)
	}
	if got := store.GetInt(KeyMaxScanThreads, 0); got != 3 {
		t.Errorf("default max_scan_threads = %d, want 3", got)
	}
	if errs := store.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestStoreUpdateChangedKeys(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	if _, err := store.Replace(map[string]any{"server_port": 8080}, "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	ev, err := store.Update(map[string]any{"server_port": 9090})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !reflect.DeepEqual(ev.ChangedKeys, []string{"server_port"}) {
		t.Errorf("ChangedKeys = %v, want [server_port]", ev.ChangedKeys)
	}
	if got := store.GetInt(KeyServerPort, 0); got != 9090 {
		t.Errorf("server_port = %d, want 9090", got)
	}
}

func TestStoreUpdateIdempotent(t *testing.T) {
	t.Parallel()
	store := NewStore(nil, WithDefaults(Defaults()))
	obs := &recordingObserver{}
	store.Bus().Subscribe(obs)

	patch := map[string]any{
		"threading":  map[string]any{"max_scan_threads": 7},
		"dedup_mode": "fast",
	}
	first, err := store.Update(patch)
	if err != nil {
		t.Fatalf("first Update: %v", err)
	}
	if len(first.ChangedKeys) != 2 {
		t.Fatalf("first ChangedKeys = %v, want 2 keys", first.ChangedKeys)
	}
	version := store.Version()

	second, err := store.Update(patch)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if len(second.ChangedKeys) != 0 {
		t.Errorf("second ChangedKeys = %v, want none", second.ChangedKeys)
	}
	if store.Version() != version {
		t.Errorf("Version() = %d after no-op, want %d", store.Version(), version)
	}
	if obs.count() != 1 {
		t.Errorf("notifications = %d, want 1", obs.count())
	}
}

func TestStoreUpdateDottedKeys(t *testing.T) {
	t.Parallel()
	store := NewStore(nil, WithDefaults(Defaults()))

	ev, err := store.Update(map[string]any{"threading.database_threads": 8})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !reflect.DeepEqual(ev.ChangedKeys, []string{KeyDatabaseThreads}) {
		t.Errorf("ChangedKeys = %v", ev.ChangedKeys)
	}
	if got := store.GetInt(KeyDatabaseThreads, 0); got != 8 {
		t.Errorf("database_threads = %d, want 8", got)
	}
	if got := store.GetInt(KeyMaxProcessingThreads, 0); got != 4 {
		t.Errorf("sibling max_processing_threads = %d, want 4", got)
	}
}

func TestStoreDecoderThreadNotifications(t *testing.T) {
	t.Parallel()
	store := NewStore(nil, WithDefaults(Defaults()))
	obs := &recordingObserver{}
	store.Bus().Subscribe(obs)

	for _, n := range []int{3, 5, 7} {
		if _, err := store.Set(KeyDecoderMaxThreads, n); err != nil {
			t.Fatalf("Set(%d): %v", n, err)
		}
	}
	if obs.count() != 3 {
		t.Fatalf("notifications = %d, want 3", obs.count())
	}
	if got := store.GetInt(KeyDecoderMaxThreads, 0); got != 7 {
		t.Errorf("decoder.max_threads = %d, want 7", got)
	}
	if !obs.last().Has("decoder") {
		t.Errorf("last event %v does not touch decoder", obs.last().ChangedKeys)
	}
}

func TestStoreUpdateValidated(t *testing.T) {
	t.Parallel()
	store := NewStore(nil, WithDefaults(Defaults()))
	obs := &recordingObserver{}
	store.Bus().Subscribe(obs)

	tests := []struct {
		name  string
		patch map[string]any
	}{
		{name: "port too large", patch: map[string]any{"server_port": 70000}},
		{name: "unknown mode", patch: map[string]any{"dedup_mode": "paranoid"}},
		{name: "too many db threads", patch: map[string]any{"threading.database_threads": 33}},
		{name: "zero interval", patch: map[string]any{"scan_interval_seconds": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.UpdateValidated(tt.patch); !errors.Is(err, ErrValidation) {
				t.Errorf("UpdateValidated() error = %v, want ErrValidation", err)
			}
		})
	}
	if obs.count() != 0 {
		t.Errorf("notifications = %d after rejected patches, want 0", obs.count())
	}
	if store.Version() != 0 {
		t.Errorf("Version() = %d, want 0", store.Version())
	}

	if _, err := store.UpdateValidated(map[string]any{"server_port": 9090}); err != nil {
		t.Errorf("valid patch rejected: %v", err)
	}
}

func TestStoreUpdateRejectsArrays(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	_, err := store.Update(map[string]any{"dirs": []any{"a", "b"}})
	if !errors.Is(err, ErrInvalidPatch) {
		t.Errorf("Update() error = %v, want ErrInvalidPatch", err)
	}
}

func TestStoreTypedGetters(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	_, err := store.Update(map[string]any{
		"flag":  true,
		"count": 12.0,
		"ratio": 0.5,
		"name":  "dedup",
		"neg":   -3,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if !store.GetBool("flag", false) {
		t.Error("GetBool(flag) = false")
	}
	if got := store.GetInt("count", 0); got != 12 {
		t.Errorf("GetInt(count) = %d, want 12 from integral float", got)
	}
	if got := store.GetInt("ratio", -1); got != -1 {
		t.Errorf("GetInt(ratio) = %d, want default", got)
	}
	if got := store.GetFloat("ratio", 0); got != 0.5 {
		t.Errorf("GetFloat(ratio) = %v, want 0.5", got)
	}
	if got := store.GetUint("neg", 99); got != 99 {
		t.Errorf("GetUint(neg) = %d, want default", got)
	}
	if got := store.GetString("count", "def"); got != "def" {
		t.Errorf("GetString(count) = %q, want default", got)
	}
	if got := store.GetString("missing", "def"); got != "def" {
		t.Errorf("GetString(missing) = %q, want default", got)
	}
}

func TestStoreChildren(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	if _, err := store.Set("scan.directories", map[string]any{"photos": "/p", "music": "/m"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	children := store.Children(KeyScanDirectories)
	if len(children) != 2 {
		t.Fatalf("Children() len = %d, want 2", len(children))
	}
	if got, _ := children["photos"].AsString(); got != "/p" {
		t.Errorf("photos = %q, want /p", got)
	}
	if store.Children("scan.directories.photos") != nil {
		t.Error("Children() of a leaf should be nil")
	}
}

func TestStoreSaveRoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)
			src := NewStore(nil, WithDefaults(Defaults()))
			if _, err := src.Set(KeyServerPort, 9191); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if !src.Save(path) {
				t.Fatal("Save() = false")
			}

			dst := NewStore(nil)
			if !dst.Load(path) {
				t.Fatal("Load() = false")
			}
			if diff := Diff(src.Snapshot(), dst.Snapshot()); len(diff) != 0 {
				t.Errorf("round trip differs at %v", diff)
			}
		})
	}
}

func TestStoreHistory(t *testing.T) {
	t.Parallel()
	store := NewStore(nil, WithHistory(NewHistory(2)))
	for _, port := range []int{1, 2, 3} {
		if _, err := store.Set(KeyServerPort, port); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	all := store.History().All()
	if len(all) != 2 {
		t.Fatalf("history len = %d, want 2", len(all))
	}
	if all[0].Version != 2 || all[1].Version != 3 {
		t.Errorf("history versions = %d,%d, want 2,3", all[0].Version, all[1].Version)
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Set("counter", i+1); err != nil {
				t.Errorf("Set: %v", err)
			}
			_ = store.GetInt("counter", 0)
		}(i)
	}
	wg.Wait()
	if store.Version() != 20 {
		t.Errorf("Version() = %d, want 20", store.Version())
	}
}
