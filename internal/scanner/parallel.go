package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-dedup/internal/database"
	"media-dedup/internal/filesystem"
	"media-dedup/internal/logging"
	"media-dedup/internal/mediatypes"
	"media-dedup/internal/pool"
)

// Root is a named scan directory.
type Root struct {
	Name string
	Path string
}

// ParallelWalker walks one root, reading directories concurrently. Each
// directory read holds a token from the scan pool.
type ParallelWalker struct {
	root       Root
	categories *mediatypes.Categories
	tokens     *pool.Pool[pool.Token]
	retry      filesystem.RetryConfig
	emit       func(database.MediaFile)

	// Pending directories. pending counts directories queued or being read.
	mu      sync.Mutex
	cond    *sync.Cond
	dirs    []string
	pending int
	aborted bool

	// Statistics
	filesFound   atomic.Int64
	foldersRead  atomic.Int64
	errorsCount  atomic.Int64
	rootReadable atomic.Bool
}

// NewParallelWalker creates a walker for root. emit is called for each media
// file found, from several goroutines at once.
func NewParallelWalker(root Root, categories *mediatypes.Categories, tokens *pool.Pool[pool.Token], emit func(database.MediaFile)) *ParallelWalker {
	pw := &ParallelWalker{
		root:       root,
		categories: categories,
		tokens:     tokens,
		retry:      filesystem.DefaultRetryConfig(),
		emit:       emit,
	}
	pw.cond = sync.NewCond(&pw.mu)
	return pw
}

// Walk reads the tree with workers goroutines and returns when every
// directory has been read or ctx is done.
func (pw *ParallelWalker) Walk(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	logging.Debug("Walking %s (%s) with %d workers", pw.root.Name, pw.root.Path, workers)
	startTime := time.Now()

	pw.dirs = append(pw.dirs, pw.root.Path)
	pw.pending = 1

	// Wake idle workers on cancellation.
	stop := context.AfterFunc(ctx, func() {
		pw.mu.Lock()
		pw.aborted = true
		pw.mu.Unlock()
		pw.cond.Broadcast()
	})
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pw.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	logging.Debug("Walk of %s complete: %d files, %d folders in %v (errors: %d)",
		pw.root.Name, pw.filesFound.Load(), pw.foldersRead.Load(), time.Since(startTime), pw.errorsCount.Load())

	return ctx.Err()
}

// next blocks until a directory is available. It returns false once the walk
// is finished or aborted.
func (pw *ParallelWalker) next() (string, bool) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	for len(pw.dirs) == 0 && pw.pending > 0 && !pw.aborted {
		pw.cond.Wait()
	}
	if pw.aborted || len(pw.dirs) == 0 {
		return "", false
	}
	last := len(pw.dirs) - 1
	dir := pw.dirs[last]
	pw.dirs = pw.dirs[:last]
	return dir, true
}

// done marks dir read and queues its subdirectories.
func (pw *ParallelWalker) done(subdirs []string) {
	pw.mu.Lock()
	pw.dirs = append(pw.dirs, subdirs...)
	pw.pending += len(subdirs) - 1
	finished := pw.pending == 0
	pw.mu.Unlock()

	if finished || len(subdirs) > 0 {
		pw.cond.Broadcast()
	}
}

func (pw *ParallelWalker) worker(ctx context.Context, id int) {
	logging.Debug("Walker %s/%d started", pw.root.Name, id)

	for {
		dir, ok := pw.next()
		if !ok {
			return
		}

		token, err := pw.tokens.AcquireContext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				pw.errorsCount.Add(1)
				logging.Warn("Walker %s/%d cannot acquire scan token: %v", pw.root.Name, id, err)
			}
			pw.done(nil)
			return
		}
		subdirs := pw.readDir(dir)
		pw.tokens.Release(token)

		pw.done(subdirs)
	}
}

// readDir emits the media files in dir and returns its subdirectories.
func (pw *ParallelWalker) readDir(dir string) []string {
	entries, err := filesystem.ReadDirWithRetry(dir, pw.retry)
	if err != nil {
		pw.errorsCount.Add(1)
		logging.Warn("Error reading directory %s: %v", dir, err)
		return nil
	}
	if dir == pw.root.Path {
		pw.rootReadable.Store(true)
	}
	pw.foldersRead.Add(1)

	var subdirs []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)
		switch {
		case entry.IsDir():
			subdirs = append(subdirs, path)
			continue
		case !entry.Type().IsRegular():
			// symlinks, devices, sockets
			continue
		}

		if file, ok := pw.mediaFile(path, entry); ok {
			pw.filesFound.Add(1)
			pw.emit(file)
		}
	}
	return subdirs
}

// mediaFile builds the catalog entry for a regular file, or reports false
// when no enabled category includes its extension.
func (pw *ParallelWalker) mediaFile(path string, entry fs.DirEntry) (database.MediaFile, bool) {
	ext := mediatypes.NormalizeExtension(filepath.Ext(entry.Name()))
	category := pw.categories.Lookup(ext)
	if category == mediatypes.CategoryOther {
		return database.MediaFile{}, false
	}

	info, err := entry.Info()
	if err != nil {
		// The entry may have gone stale between readdir and lstat.
		info, err = filesystem.StatWithRetry(path, pw.retry)
		if err != nil {
			pw.errorsCount.Add(1)
			logging.Debug("Error getting info for %s: %v", path, err)
			return database.MediaFile{}, false
		}
	}

	return database.MediaFile{
		Path:      path,
		Root:      pw.root.Name,
		Name:      entry.Name(),
		Category:  string(category),
		Extension: ext,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}, true
}

// RootReadable reports whether the root directory itself could be read.
func (pw *ParallelWalker) RootReadable() bool {
	return pw.rootReadable.Load()
}

// Stats returns current walk statistics.
func (pw *ParallelWalker) Stats() (files, folders, errors int64) {
	return pw.filesFound.Load(), pw.foldersRead.Load(), pw.errorsCount.Load()
}
