package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"media-dedup/internal/config"
	"media-dedup/internal/database"
	"media-dedup/internal/dbqueue"
	"media-dedup/internal/decoder"
	"media-dedup/internal/dedup"
	"media-dedup/internal/fingerprint"
	"media-dedup/internal/logging"
	"media-dedup/internal/mediatypes"
	"media-dedup/internal/memory"
	"media-dedup/internal/metrics"
	"media-dedup/internal/pool"
)

const (
	// Files fetched and written per batch
	batchSize = 200

	defaultMode                = fingerprint.ModeBalanced
	defaultSimilarityThreshold = 6
)

var (
	// ErrProcessingInProgress is returned when a run is requested while one runs.
	ErrProcessingInProgress = errors.New("processing already in progress")

	// ErrStopped is returned by Process after Stop.
	ErrStopped = errors.New("processor stopped")
)

// Summary describes one processing run.
type Summary struct {
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Processed     int       `json:"processed"`
	Failed        int       `json:"failed"`
	ExactGroups   int       `json:"exactGroups"`
	SimilarGroups int       `json:"similarGroups"`
	Error         string    `json:"error,omitempty"`
}

// Processor fingerprints files and detects duplicates. Overlapping runs are
// refused.
type Processor struct {
	store   *config.Store
	queue   *dbqueue.Queue
	tokens  *pool.Pool[pool.Token]
	decoder *decoder.Decoder
	memory  *memory.Monitor

	stopChan chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	isProcessing bool
	lastRun      *Summary
}

// New creates a Processor. tokens bounds concurrent fingerprinting; dec may
// be nil, in which case no perceptual hashes are computed.
func New(store *config.Store, queue *dbqueue.Queue, tokens *pool.Pool[pool.Token], dec *decoder.Decoder) *Processor {
	return &Processor{
		store:    store,
		queue:    queue,
		tokens:   tokens,
		decoder:  dec,
		stopChan: make(chan struct{}),
	}
}

// SetMemoryMonitor makes each batch wait while heap usage is critical.
func (p *Processor) SetMemoryMonitor(m *memory.Monitor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.memory = m
}

// Mode returns the configured dedup mode.
func (p *Processor) Mode() (fingerprint.Mode, error) {
	return fingerprint.ParseMode(p.store.GetString(config.KeyDedupMode, string(defaultMode)))
}

// Stop cancels a running pass and refuses new ones.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
}

// Process fingerprints every unprocessed file and rebuilds the duplicate
// groups for the configured mode.
func (p *Processor) Process(ctx context.Context) (Summary, error) {
	select {
	case <-p.stopChan:
		return Summary{}, ErrStopped
	default:
	}

	if !p.tryStart() {
		logging.Info("Processing already in progress, skipping...")
		return Summary{}, ErrProcessingInProgress
	}
	defer p.finish()

	metrics.ProcessorIsRunning.Set(1)
	defer metrics.ProcessorIsRunning.Set(0)
	metrics.ProcessorRunsTotal.Inc()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	summary := Summary{StartedAt: time.Now()}
	err := p.process(ctx, &summary)
	summary.FinishedAt = time.Now()
	if err != nil {
		summary.Error = err.Error()
	}

	duration := summary.FinishedAt.Sub(summary.StartedAt)
	metrics.ProcessorLastRunDuration.Set(duration.Seconds())

	p.mu.Lock()
	p.lastRun = &summary
	p.mu.Unlock()

	if err != nil {
		logging.Error("Processing failed after %v: %v", duration, err)
		return summary, err
	}
	logging.Info("Processing complete (%s): %d fingerprinted, %d failed, %d exact and %d similar groups in %v",
		summary.Mode, summary.Processed, summary.Failed, summary.ExactGroups, summary.SimilarGroups, duration)
	return summary, nil
}

func (p *Processor) process(ctx context.Context, summary *Summary) error {
	mode, err := p.Mode()
	if err != nil {
		return err
	}
	summary.Mode = string(mode)

	p.mu.Lock()
	monitor := p.memory
	p.mu.Unlock()

	for {
		if monitor != nil {
			if err := monitor.Wait(ctx); err != nil {
				return err
			}
		}

		files, err := dbqueue.Read(p.queue, func(conn *sql.Conn) ([]database.MediaFile, error) {
			return database.UnprocessedFiles(ctx, conn, string(mode), batchSize)
		}).GetContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to list unprocessed files: %w", err)
		}
		if len(files) == 0 {
			break
		}

		fps, err := p.fingerprintBatch(ctx, files, mode)
		if err != nil {
			return err
		}
		for _, fp := range fps {
			if fp.Error != "" {
				summary.Failed++
			} else {
				summary.Processed++
			}
		}

		if _, err := p.queue.Submit(func(conn *sql.Conn) error {
			return database.SaveFingerprints(context.Background(), conn, fps)
		}).Get(); err != nil {
			return fmt.Errorf("failed to save fingerprints: %w", err)
		}
		logging.Debug("Fingerprinted %d files (%s)", len(fps), mode)
	}

	return p.rebuildGroups(ctx, mode, summary)
}

// fingerprintBatch hashes files concurrently, holding one processing token
// per file. Per-file failures are recorded in the result, not returned.
func (p *Processor) fingerprintBatch(ctx context.Context, files []database.MediaFile, mode fingerprint.Mode) ([]database.Fingerprint, error) {
	fps := make([]database.Fingerprint, len(files))
	g, gctx := errgroup.WithContext(ctx)

	for i := range files {
		token, err := p.tokens.AcquireContext(gctx)
		if err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("failed to acquire processing token: %w", err)
		}
		g.Go(func() error {
			defer p.tokens.Release(token)
			fps[i] = p.fingerprintFile(gctx, files[i], mode)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fps, nil
}

func (p *Processor) fingerprintFile(ctx context.Context, f database.MediaFile, mode fingerprint.Mode) database.Fingerprint {
	start := time.Now()
	fp := database.Fingerprint{
		FileID: f.ID,
		Mode:   string(mode),
		// The catalog's view of the file, so a failure is not retried until the
		// file changes.
		FileSize:    f.Size,
		FileModTime: f.ModTime,
		ProcessedAt: start,
	}

	digest, _, err := fingerprint.File(f.Path, mode)
	if err != nil {
		logging.Warn("Failed to fingerprint %s: %v", f.Path, err)
		fp.Error = err.Error()
		metrics.FingerprintsTotal.WithLabelValues(string(mode), "error").Inc()
		return fp
	}
	fp.ContentHash = digest

	if mode.UsesPerceptualHash() && p.decoder != nil && mediatypes.IsDecodableImage(f.Extension) {
		hash, err := p.decoder.PerceptualHash(ctx, f.Path, f.Size, f.ModTime)
		if err != nil {
			logging.Debug("No perceptual hash for %s: %v", f.Path, err)
		} else {
			fp.PerceptualHash = hash
			fp.HasPerceptual = true
		}
	}

	metrics.FingerprintsTotal.WithLabelValues(string(mode), "success").Inc()
	metrics.FingerprintDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	return fp
}

func (p *Processor) rebuildGroups(ctx context.Context, mode fingerprint.Mode, summary *Summary) error {
	files, err := dbqueue.Read(p.queue, func(conn *sql.Conn) ([]database.FingerprintedFile, error) {
		return database.FingerprintedFiles(ctx, conn, string(mode))
	}).GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fingerprints: %w", err)
	}

	threshold := p.store.GetInt(config.KeySimilarityThreshold, defaultSimilarityThreshold)
	groups := dedup.Find(files, mode, threshold)

	finishedAt := time.Now()
	if _, err := p.queue.Submit(func(conn *sql.Conn) error {
		if err := database.ReplaceGroups(context.Background(), conn, string(mode), groups); err != nil {
			return err
		}
		return database.SetLastProcessed(context.Background(), conn, finishedAt)
	}).Get(); err != nil {
		return fmt.Errorf("failed to save duplicate groups: %w", err)
	}

	var duplicateFiles int
	var reclaimable int64
	for _, g := range groups {
		switch g.Kind {
		case database.KindExact:
			summary.ExactGroups++
		case database.KindSimilar:
			summary.SimilarGroups++
		}
		duplicateFiles += len(g.Files)
		reclaimable += g.Reclaimable
	}

	metrics.DuplicateGroups.WithLabelValues(string(mode), database.KindExact).Set(float64(summary.ExactGroups))
	metrics.DuplicateGroups.WithLabelValues(string(mode), database.KindSimilar).Set(float64(summary.SimilarGroups))
	metrics.DuplicateFiles.WithLabelValues(string(mode)).Set(float64(duplicateFiles))
	metrics.ReclaimableBytes.WithLabelValues(string(mode)).Set(float64(reclaimable))
	return nil
}

func (p *Processor) tryStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isProcessing {
		return false
	}
	p.isProcessing = true
	return true
}

func (p *Processor) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isProcessing = false
}

// IsProcessing returns whether a run is in progress.
func (p *Processor) IsProcessing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isProcessing
}

// LastRun returns the last finished run, or nil.
func (p *Processor) LastRun() *Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun
}

// TriggerProcess starts a run in the background.
func (p *Processor) TriggerProcess() {
	go func() {
		if _, err := p.Process(context.Background()); err != nil && !errors.Is(err, ErrProcessingInProgress) {
			logging.Error("Manually triggered processing failed: %v", err)
		}
	}()
}
