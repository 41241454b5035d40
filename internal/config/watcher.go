package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-dedup/internal/logging"
)

// DefaultDebounce collapses the burst of events editors emit for one save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a Store when its configuration file changes on disk. The
// parent directory is watched so that atomic rename saves are seen.
type Watcher struct {
	store    *Store
	path     string
	absPath  string
	debounce time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	done     chan struct{}
	reloads  int
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(store *Store, path string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Watcher{
		store:    store,
		path:     path,
		absPath:  abs,
		debounce: debounce,
	}
}

// Start begins watching. Starting a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	dir := filepath.Dir(w.absPath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}

	w.watcher = fw
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(fw, w.stopChan, w.done)
	logging.Info("Watching %s for configuration changes", w.path)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, stop, done := w.watcher, w.stopChan, w.done
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return
	}
	close(stop)
	<-done
	fw.Close()
}

// Reloads returns how many reloads the watcher has attempted.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) loop(fw *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-stop:
			timer.Stop()
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				name = event.Name
			}
			if name != w.absPath {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logging.Warn("Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	event, err := w.store.loadFrom(w.path, "watch", true)
	if err != nil {
		logging.Warn("Ignoring config change in %s: %v", w.path, err)
		return
	}
	if len(event.ChangedKeys) > 0 {
		logging.Info("Config reloaded from %s: %v", w.path, event.ChangedKeys)
	}
}
