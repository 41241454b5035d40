package config

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
)

// Store holds the current configuration snapshot and publishes changes on its
// Bus. Readers only take the lock long enough to copy the snapshot pointer;
// decoding and merging happen on private copies outside it.
type Store struct {
	mu   sync.Mutex
	snap *Snapshot
	path string

	// writeMu serializes writers so every change is diffed against the
	// snapshot it replaces.
	writeMu sync.Mutex

	defaults *Snapshot
	bus      *Bus
	history  *History
}

// Option configures a Store.
type Option func(*Store)

// WithDefaults sets the tree that loaded files are merged over. The store also
// starts out holding these defaults.
func WithDefaults(tree map[string]any) Option {
	return func(s *Store) {
		snap, err := NewSnapshot(tree)
		if err != nil {
			logging.Error("config: invalid defaults ignored: %v", err)
			return
		}
		s.defaults = snap
	}
}

// WithHistory records applied changes in h.
func WithHistory(h *History) Option {
	return func(s *Store) { s.history = h }
}

// NewStore creates a store publishing on bus. A nil bus gets a private one.
func NewStore(bus *Bus, opts ...Option) *Store {
	if bus == nil {
		bus = NewBus()
	}
	s := &Store{bus: bus}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaults == nil {
		s.defaults = &Snapshot{root: emptyRoot()}
	}
	s.snap = &Snapshot{root: s.defaults.root.clone()}
	return s
}

// Bus returns the bus changes are published on.
func (s *Store) Bus() *Bus { return s.bus }

// History returns the change history, or nil when none was configured.
func (s *Store) History() *History { return s.history }

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Version returns the version of the current snapshot.
func (s *Store) Version() int64 {
	return s.Snapshot().Version()
}

// Path returns the file most recently loaded, if any.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Load replaces the configuration with the contents of path merged over the
// defaults. On failure the current snapshot is kept and false is returned.
func (s *Store) Load(path string) bool {
	if _, err := s.LoadFile(path); err != nil {
		logging.Error("Failed to load config from %s: %v", path, err)
		return false
	}
	return true
}

// LoadFile is Load with the error and resulting event returned.
func (s *Store) LoadFile(path string) (UpdateEvent, error) {
	return s.loadFrom(path, "load", false)
}

// Reload re-reads the file most recently loaded. Unlike Load, a reloaded file
// that fails validation is refused and the running configuration is kept.
func (s *Store) Reload(source string) (UpdateEvent, error) {
	path := s.Path()
	if path == "" {
		return UpdateEvent{}, fmt.Errorf("config: no file loaded")
	}
	return s.loadFrom(path, source, true)
}

func (s *Store) loadFrom(path, source string, validate bool) (UpdateEvent, error) {
	tree, err := ReadFile(path)
	if err != nil {
		metrics.ConfigLoadFailures.Inc()
		return UpdateEvent{}, err
	}
	event, err := s.replace(tree, source, validate)
	if err != nil {
		metrics.ConfigLoadFailures.Inc()
		return UpdateEvent{}, fmt.Errorf("%s: %w", path, err)
	}
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	logging.Info("Configuration loaded from %s (version %d, %d keys changed)", path, event.Version, len(event.ChangedKeys))
	return event, nil
}

// Replace installs tree merged over the defaults as the new configuration.
func (s *Store) Replace(tree map[string]any, source string) (UpdateEvent, error) {
	return s.replace(tree, source, false)
}

func (s *Store) replace(tree map[string]any, source string, validate bool) (UpdateEvent, error) {
	patch, err := FromAny(tree)
	if err != nil {
		return UpdateEvent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return s.commit(source, validate, func(*Snapshot) *Snapshot {
		return s.defaults.Merge(patch)
	})
}

// Save writes the current snapshot to path, as YAML for .yaml/.yml files and
// indented JSON otherwise.
func (s *Store) Save(path string) bool {
	if err := s.SaveFile(path); err != nil {
		logging.Error("Failed to save config to %s: %v", path, err)
		return false
	}
	return true
}

// SaveFile is Save with the error returned.
func (s *Store) SaveFile(path string) error {
	data, err := Encode(s.Snapshot(), FormatForPath(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, data)
}

// Update deep-merges patch into the configuration. Keys may be nested objects
// or dotted paths. The returned event lists exactly the leaf keys whose value
// changed; observers are only notified when that list is not empty.
func (s *Store) Update(patch map[string]any) (UpdateEvent, error) {
	return s.update(patch, "update", false)
}

// UpdateValidated is Update but refuses patches that would leave the
// configuration invalid. A refused patch changes nothing and notifies nobody.
func (s *Store) UpdateValidated(patch map[string]any) (UpdateEvent, error) {
	return s.update(patch, "update", true)
}

// Set updates a single dotted key.
func (s *Store) Set(key string, value any) (UpdateEvent, error) {
	return s.Update(map[string]any{key: value})
}

func (s *Store) update(patch map[string]any, source string, validate bool) (UpdateEvent, error) {
	v, err := FromAny(patch)
	if err != nil {
		return UpdateEvent{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return s.commit(source, validate, func(old *Snapshot) *Snapshot {
		return old.Merge(v)
	})
}

// Validate checks the current snapshot.
func (s *Store) Validate() []error {
	return ValidateSnapshot(s.Snapshot())
}

func (s *Store) commit(source string, validate bool, build func(old *Snapshot) *Snapshot) (UpdateEvent, error) {
	event, err := s.swap(source, validate, build)
	if err != nil {
		return event, err
	}
	if len(event.ChangedKeys) == 0 {
		return event, nil
	}

	metrics.ConfigUpdatesTotal.WithLabelValues(source).Inc()
	metrics.ConfigChangedKeysTotal.Add(float64(len(event.ChangedKeys)))
	metrics.ConfigVersion.Set(float64(event.Version))
	if s.history != nil {
		s.history.Record(Change{
			Timestamp:   time.Now(),
			Version:     event.Version,
			Source:      source,
			ChangedKeys: event.ChangedKeys,
		})
	}
	logging.Debug("Config version %d (%s) changed %v", event.Version, source, event.ChangedKeys)

	s.bus.Publish(event)
	return event, nil
}

func (s *Store) swap(source string, validate bool, build func(old *Snapshot) *Snapshot) (UpdateEvent, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := s.Snapshot()
	next := build(old)
	if validate {
		if errs := ValidateSnapshot(next); len(errs) > 0 {
			metrics.ConfigRejectedTotal.Inc()
			return UpdateEvent{}, errors.Join(errs...)
		}
	}

	changed := Diff(old, next)
	if len(changed) == 0 {
		return UpdateEvent{Version: old.Version(), Source: source}, nil
	}
	next.version = old.Version() + 1

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	return UpdateEvent{ChangedKeys: changed, Version: next.version, Source: source}, nil
}

// Get returns the value at a dotted key.
func (s *Store) Get(key string) (Value, bool) {
	return s.Snapshot().Lookup(key)
}

// Has reports whether key is set.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// GetBool returns the boolean at key, or def when absent or not a boolean.
func (s *Store) GetBool(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return def
}

// GetInt returns the integer at key, or def when absent, not an integer, or
// out of range for int.
func (s *Store) GetInt(key string, def int) int {
	if v, ok := s.Get(key); ok {
		if i, ok := v.AsInt(); ok && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
	}
	return def
}

// GetUint returns the unsigned integer at key, or def.
func (s *Store) GetUint(key string, def uint64) uint64 {
	if v, ok := s.Get(key); ok {
		if u, ok := v.AsUint(); ok {
			return u
		}
	}
	return def
}

// GetFloat returns the number at key, or def.
func (s *Store) GetFloat(key string, def float64) float64 {
	if v, ok := s.Get(key); ok {
		if f, ok := v.AsFloat(); ok {
			return f
		}
	}
	return def
}

// GetString returns the string at key, or def.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.AsString(); ok {
			return str
		}
	}
	return def
}

// Children returns the direct children of the object at key. It returns nil
// when key is absent or not an object.
func (s *Store) Children(key string) map[string]Value {
	v, ok := s.Get(key)
	if !ok || !v.IsObject() {
		return nil
	}
	out := make(map[string]Value, len(v.obj))
	for _, k := range v.Keys() {
		child, _ := v.Child(k)
		out[k] = child
	}
	return out
}
