package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"media-dedup/internal/config"
	"media-dedup/internal/database"
	"media-dedup/internal/dbqueue"
	"media-dedup/internal/logging"
	"media-dedup/internal/mediatypes"
	"media-dedup/internal/metrics"
	"media-dedup/internal/pool"
)

// Number of files written per queue operation
const batchSize = 500

// Scanner catalogs media files. It is safe for concurrent use; overlapping
// scans are refused.
type Scanner struct {
	store  *config.Store
	queue  *dbqueue.Queue
	tokens *pool.Pool[pool.Token]

	stopChan chan struct{}
	stopOnce sync.Once

	scanMu     sync.Mutex
	isScanning bool
	lastScan   *database.ScanRun

	// Progress tracking
	filesSeen    atomic.Int64
	foldersSeen  atomic.Int64
	scanProgress atomic.Value

	// Callback when a scan completes
	onScanComplete func(database.ScanRun)
}

// Progress tracks the current scan.
type Progress struct {
	FilesSeen   int64     `json:"filesSeen"`
	FoldersSeen int64     `json:"foldersSeen"`
	IsScanning  bool      `json:"isScanning"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
}

// Status is the scanner state reported by the health endpoint.
type Status struct {
	Scanning bool              `json:"scanning"`
	LastScan *database.ScanRun `json:"lastScan,omitempty"`
	Progress *Progress         `json:"progress,omitempty"`
}

// New creates a Scanner. tokens bounds concurrent directory reads.
func New(store *config.Store, queue *dbqueue.Queue, tokens *pool.Pool[pool.Token]) *Scanner {
	s := &Scanner{
		store:    store,
		queue:    queue,
		tokens:   tokens,
		stopChan: make(chan struct{}),
	}
	s.scanProgress.Store(Progress{})
	return s
}

// SetOnScanComplete sets a callback invoked after each successful scan.
func (s *Scanner) SetOnScanComplete(callback func(database.ScanRun)) {
	s.onScanComplete = callback
}

// Stop cancels a running scan and refuses new ones.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Roots returns the configured scan directories sorted by name. Entries
// that are not strings or are empty are ignored.
func (s *Scanner) Roots() []Root {
	var roots []Root
	for name, v := range s.store.Children(config.KeyScanDirectories) {
		path, ok := v.AsString()
		if !ok || path == "" {
			logging.Warn("Ignoring scan directory %q: not a path", name)
			continue
		}
		roots = append(roots, Root{Name: name, Path: path})
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })
	return roots
}

// Categories returns the extension lookup built from the categories key.
func (s *Scanner) Categories() *mediatypes.Categories {
	return CategoriesFromStore(s.store)
}

// CategoriesFromStore reads categories.<name>.<ext> from store.
func CategoriesFromStore(store *config.Store) *mediatypes.Categories {
	tree := make(map[string]map[string]bool)
	for name, cat := range store.Children(config.KeyCategories) {
		if !cat.IsObject() {
			continue
		}
		exts := make(map[string]bool)
		for _, ext := range cat.Keys() {
			v, _ := cat.Child(ext)
			enabled, ok := v.AsBool()
			exts[ext] = ok && enabled
		}
		tree[name] = exts
	}
	return mediatypes.NewCategories(tree)
}

// Scan walks every configured root and updates the catalog. It returns
// ErrScanInProgress if another scan is running.
func (s *Scanner) Scan(ctx context.Context) (database.ScanRun, error) {
	select {
	case <-s.stopChan:
		return database.ScanRun{}, ErrStopped
	default:
	}

	if !s.tryStartScanning() {
		logging.Info("Scan already in progress, skipping...")
		return database.ScanRun{}, ErrScanInProgress
	}
	defer s.finishScanning()

	metrics.ScannerIsRunning.Set(1)
	defer metrics.ScannerIsRunning.Set(0)
	metrics.ScannerRunsTotal.Inc()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	// seen_at is stored in seconds
	startTime := time.Now().Truncate(time.Second)
	run := database.NewScanRun(startTime)
	s.resetCounters(startTime)

	err := s.scan(ctx, &run)
	if err != nil {
		run.Error = err.Error()
		metrics.ScannerErrors.Inc()
	}
	run.FinishedAt = time.Now()

	if _, recErr := s.queue.Submit(func(conn *sql.Conn) error {
		return database.RecordScanRun(context.Background(), conn, run)
	}).Get(); recErr != nil {
		logging.Error("Failed to record scan run %s: %v", run.ID, recErr)
	}

	s.finalizeScan(run)
	if err != nil {
		return run, err
	}

	if s.onScanComplete != nil {
		s.onScanComplete(run)
	}
	return run, nil
}

func (s *Scanner) scan(ctx context.Context, run *database.ScanRun) error {
	roots := s.Roots()
	if len(roots) == 0 {
		return ErrNoDirectories
	}
	categories := s.Categories()
	if categories.Len() == 0 {
		logging.Warn("No file extensions enabled under %s; scan will find nothing", config.KeyCategories)
	}

	logging.Info("Starting scan %s of %d directories", run.ID, len(roots))

	batcher := newBatcher(s.queue, run.StartedAt)
	var clean []string
	for _, root := range roots {
		walker := NewParallelWalker(root, categories, s.tokens, func(f database.MediaFile) {
			batcher.add(f)
			s.filesSeen.Add(1)
		})

		workers := s.tokens.Capacity()
		metrics.ScannerParallelWorkers.Set(float64(workers))

		walkErr := walker.Walk(ctx, workers)
		files, folders, errs := walker.Stats()
		s.foldersSeen.Add(folders)
		s.updateProgress(run.StartedAt)

		if walkErr != nil {
			batcher.flush()
			_ = batcher.wait()
			return fmt.Errorf("scan of %s interrupted: %w", root.Name, walkErr)
		}
		if !walker.RootReadable() {
			logging.Error("Scan directory %s (%s) is unreadable; keeping its catalog entries", root.Name, root.Path)
			continue
		}
		if errs > 0 {
			logging.Warn("Scan of %s finished with %d errors", root.Name, errs)
		}
		logging.Info("Scanned %s: %d media files in %d folders", root.Name, files, folders)
		clean = append(clean, root.Name)
	}

	batcher.flush()
	if err := batcher.wait(); err != nil {
		// Some files were not written; removing "unseen" files would drop them.
		return fmt.Errorf("failed to write scanned files: %w", err)
	}
	run.FilesSeen = s.filesSeen.Load()

	removed, err := s.cleanupMissingFiles(roots, clean, run.StartedAt)
	run.FilesRemoved = removed
	if err != nil {
		return fmt.Errorf("failed to remove missing files: %w", err)
	}
	return nil
}

// cleanupMissingFiles removes files from roots that are no longer configured
// and files under clean roots that were not seen since cutoff.
func (s *Scanner) cleanupMissingFiles(roots []Root, clean []string, cutoff time.Time) (int64, error) {
	configured := make([]string, len(roots))
	for i, r := range roots {
		configured[i] = r.Name
	}

	var deleted int64
	_, err := s.queue.Submit(func(conn *sql.Conn) error {
		ctx := context.Background()
		n, err := database.DeleteFilesOutsideRoots(ctx, conn, configured)
		if err != nil {
			return err
		}
		deleted = n
		if len(clean) == 0 {
			return nil
		}
		n, err = database.DeleteMissingFiles(ctx, conn, clean, cutoff)
		deleted += n
		return err
	}).Get()

	if deleted > 0 {
		logging.Info("Removed %d missing files from catalog", deleted)
	}
	return deleted, err
}

// tryStartScanning attempts to start scanning, returns false if already in progress.
func (s *Scanner) tryStartScanning() bool {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if s.isScanning {
		return false
	}
	s.isScanning = true
	return true
}

// finishScanning marks scanning as complete.
func (s *Scanner) finishScanning() {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.isScanning = false
}

func (s *Scanner) resetCounters(startTime time.Time) {
	s.filesSeen.Store(0)
	s.foldersSeen.Store(0)
	s.scanProgress.Store(Progress{
		IsScanning: true,
		StartedAt:  startTime,
	})
}

func (s *Scanner) updateProgress(startTime time.Time) {
	s.scanProgress.Store(Progress{
		FilesSeen:   s.filesSeen.Load(),
		FoldersSeen: s.foldersSeen.Load(),
		IsScanning:  true,
		StartedAt:   startTime,
	})
}

func (s *Scanner) finalizeScan(run database.ScanRun) {
	duration := run.FinishedAt.Sub(run.StartedAt)

	s.scanMu.Lock()
	s.lastScan = &run
	s.scanMu.Unlock()

	s.scanProgress.Store(Progress{
		FilesSeen:   run.FilesSeen,
		FoldersSeen: s.foldersSeen.Load(),
	})

	metrics.ScannerLastRunTimestamp.Set(float64(run.FinishedAt.Unix()))
	metrics.ScannerLastRunDuration.Set(duration.Seconds())
	metrics.ScannerFilesSeen.Add(float64(run.FilesSeen))
	metrics.ScannerFilesRemoved.Add(float64(run.FilesRemoved))

	if run.Error != "" {
		logging.Error("Scan %s failed after %v: %s", run.ID, duration, run.Error)
		return
	}
	logging.Info("Scan %s complete: %d files seen, %d removed in %v", run.ID, run.FilesSeen, run.FilesRemoved, duration)
}

// IsScanning returns whether a scan is in progress.
func (s *Scanner) IsScanning() bool {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	return s.isScanning
}

// LastScan returns the last finished scan, or nil.
func (s *Scanner) LastScan() *database.ScanRun {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	return s.lastScan
}

// GetProgress returns the current scan progress.
func (s *Scanner) GetProgress() Progress {
	if p, ok := s.scanProgress.Load().(Progress); ok {
		return p
	}
	return Progress{}
}

// GetStatus returns scanner state for health reporting.
func (s *Scanner) GetStatus() Status {
	s.scanMu.Lock()
	status := Status{Scanning: s.isScanning, LastScan: s.lastScan}
	s.scanMu.Unlock()

	if status.Scanning {
		p := s.GetProgress()
		status.Progress = &p
	}
	return status
}

// TriggerScan starts a scan in the background.
func (s *Scanner) TriggerScan() {
	go func() {
		if _, err := s.Scan(context.Background()); err != nil && !errors.Is(err, ErrScanInProgress) {
			logging.Error("Manually triggered scan failed: %v", err)
		}
	}()
}

// batcher collects files and writes them through the queue batchSize at a
// time. add may be called concurrently.
type batcher struct {
	queue   *dbqueue.Queue
	seenAt  time.Time
	mu      sync.Mutex
	pending []database.MediaFile
	futures []*dbqueue.Future[struct{}]
}

func newBatcher(queue *dbqueue.Queue, seenAt time.Time) *batcher {
	return &batcher{queue: queue, seenAt: seenAt}
}

func (b *batcher) add(f database.MediaFile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, f)
	if len(b.pending) >= batchSize {
		b.submitLocked()
	}
}

func (b *batcher) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitLocked()
}

func (b *batcher) submitLocked() {
	if len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = nil
	seenAt := b.seenAt
	b.futures = append(b.futures, b.queue.Submit(func(conn *sql.Conn) error {
		return database.UpsertFiles(context.Background(), conn, batch, seenAt)
	}))
}

// wait blocks until every submitted batch has run and returns their errors.
func (b *batcher) wait() error {
	b.mu.Lock()
	futures := b.futures
	b.futures = nil
	b.mu.Unlock()

	var errs []error
	for _, f := range futures {
		if _, err := f.Get(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
