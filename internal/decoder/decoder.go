package decoder

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"media-dedup/internal/config"
	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
	"media-dedup/internal/pool"
)

const (
	// PoolName labels the decode token pool in logs and metrics.
	PoolName = "decoder"

	// DefaultMaxThreads is used when decoder.max_threads is unset.
	DefaultMaxThreads = 2

	// DefaultCacheSizeMB is used when cache.decoder_cache_size_mb is unset.
	DefaultCacheSizeMB = 64
)

// Decoder computes perceptual hashes with bounded concurrency.
type Decoder struct {
	store  *config.Store
	tokens *pool.Pool[pool.Token]
	cache  *hashCache
}

// New creates a Decoder sized from store, which may be nil.
func New(store *config.Store) (*Decoder, error) {
	threads, cacheMB := DefaultMaxThreads, DefaultCacheSizeMB
	if store != nil {
		threads = store.GetInt(config.KeyDecoderMaxThreads, DefaultMaxThreads)
		cacheMB = store.GetInt(config.KeyDecoderCacheSizeMB, DefaultCacheSizeMB)
	}
	if cacheMB < 0 {
		logging.Warn("Decoder: negative %s=%d, using %d", config.KeyDecoderCacheSizeMB, cacheMB, DefaultCacheSizeMB)
		cacheMB = DefaultCacheSizeMB
	}

	tokens := pool.NewTokenPool(PoolName)
	if err := tokens.Initialize(threads); err != nil {
		return nil, fmt.Errorf("failed to size decoder pool: %w", err)
	}

	d := &Decoder{
		store:  store,
		tokens: tokens,
		cache:  newHashCache(megabytes(cacheMB)),
	}
	logging.Info("Decoder ready: %d threads, %s hash cache", threads, humanize.IBytes(uint64(megabytes(cacheMB))))
	return d, nil
}

func megabytes(mb int) int64 {
	return int64(mb) * 1024 * 1024
}

// PerceptualHash returns the difference hash of the image at path. size and
// modTime identify the file version for caching.
func (d *Decoder) PerceptualHash(ctx context.Context, path string, size int64, modTime time.Time) (uint64, error) {
	key := fmt.Sprintf("%s|%d|%d", path, size, modTime.UnixNano())
	if hash, ok := d.cache.Get(key); ok {
		metrics.DecoderCacheHits.Inc()
		return hash, nil
	}
	metrics.DecoderCacheMisses.Inc()

	token, err := d.tokens.AcquireContext(ctx)
	if err != nil {
		return 0, err
	}
	defer d.tokens.Release(token)

	metrics.DecoderInFlight.Inc()
	defer metrics.DecoderInFlight.Dec()

	img, format, err := LoadImageConstrained(path, MaxImageDimension, MaxImagePixels)
	if format == "" {
		format = "unknown"
	}
	if err != nil {
		metrics.DecoderDecodesTotal.WithLabelValues(format, "error").Inc()
		return 0, err
	}
	metrics.DecoderDecodesTotal.WithLabelValues(format, "success").Inc()

	hash := DHash(img)
	d.cache.Put(key, hash)
	_, bytes, _ := d.cache.Stats()
	metrics.DecoderCacheBytes.Set(float64(bytes))
	return hash, nil
}

// SetMaxDecoderThreads changes how many images may be decoded at once.
func (d *Decoder) SetMaxDecoderThreads(n int) error {
	if err := d.tokens.Resize(n); err != nil {
		return err
	}
	logging.Info("Decoder threads set to %d", n)
	return nil
}

// MaxDecoderThreads returns the current decode concurrency.
func (d *Decoder) MaxDecoderThreads() int {
	return d.tokens.Capacity()
}

// SetCacheSizeMB changes the hash cache budget. Zero disables caching.
func (d *Decoder) SetCacheSizeMB(mb int) error {
	if mb < 0 {
		return fmt.Errorf("invalid decoder cache size %d MB", mb)
	}
	d.cache.Resize(megabytes(mb))
	entries, bytes, _ := d.cache.Stats()
	metrics.DecoderCacheBytes.Set(float64(bytes))
	logging.Info("Decoder cache budget set to %s (%d entries, %s used)",
		humanize.IBytes(uint64(megabytes(mb))), entries, humanize.IBytes(uint64(bytes)))
	return nil
}

// CacheStats returns the number of cached hashes and their estimated size.
func (d *Decoder) CacheStats() (entries int, bytes int64) {
	entries, bytes, _ = d.cache.Stats()
	return entries, bytes
}

// OnConfigUpdate implements config.Observer.
func (d *Decoder) OnConfigUpdate(event config.UpdateEvent) {
	if d.store == nil {
		return
	}
	if event.Has(config.KeyDecoderMaxThreads) {
		n := d.store.GetInt(config.KeyDecoderMaxThreads, DefaultMaxThreads)
		if err := d.SetMaxDecoderThreads(n); err != nil {
			logging.Warn("Decoder: cannot apply %s=%d, keeping %d: %v", config.KeyDecoderMaxThreads, n, d.MaxDecoderThreads(), err)
		}
	}
	if event.Has(config.KeyDecoderCacheSizeMB) {
		mb := d.store.GetInt(config.KeyDecoderCacheSizeMB, DefaultCacheSizeMB)
		if err := d.SetCacheSizeMB(mb); err != nil {
			logging.Warn("Decoder: cannot apply %s: %v", config.KeyDecoderCacheSizeMB, err)
		}
	}
}

// Shutdown releases the decode pool. Decodes waiting for a slot fail.
func (d *Decoder) Shutdown() {
	d.tokens.Shutdown()
}
