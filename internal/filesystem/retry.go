package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"media-dedup/internal/logging"
)

// UnknownVolume labels paths outside every configured volume.
const UnknownVolume = "unknown"

// VolumeResolver maps paths to volume names for metric labels, using the
// longest matching absolute prefix.
type VolumeResolver struct {
	mounts []volumeMount // longest path first
}

type volumeMount struct {
	prefix string // absolute, with trailing separator
	name   string
}

// NewVolumeResolver creates a resolver from volume name to directory, for
// example the scan roots plus the database directory.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, dir := range volumes {
		mounts = append(mounts, volumeMount{prefix: withSeparator(absOrSelf(dir)), name: name})
	}
	slices.SortFunc(mounts, func(a, b volumeMount) int {
		if d := len(b.prefix) - len(a.prefix); d != 0 {
			return d
		}
		return strings.Compare(a.name, b.name)
	})
	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the volume containing path, or UnknownVolume. A nil
// resolver knows no volumes.
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return UnknownVolume
	}
	abs := withSeparator(absOrSelf(path))
	for _, m := range vr.mounts {
		if strings.HasPrefix(abs, m.prefix) {
			return m.name
		}
	}
	return UnknownVolume
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func withSeparator(path string) string {
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return path
	}
	return path + string(filepath.Separator)
}

var defaultResolver atomic.Pointer[VolumeResolver]

// SetDefaultVolumeResolver replaces the resolver used when a RetryConfig
// carries none. Safe to call while calls are in flight.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver.Store(vr)
}

// RetryConfig configures retries of stale file handle errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package default for labeling.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns three retries backing off from 50ms to 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) volume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Load().Resolve(path)
}

// IsStale reports whether err is an NFS stale file handle error.
func IsStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// StatWithRetry is os.Stat with stale handle retries.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(path, "stat", config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry is os.Open with stale handle retries.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry(path, "open", config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// ReadDirWithRetry is os.ReadDir with stale handle retries. Entries are
// sorted by name.
func ReadDirWithRetry(path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry(path, "readdir", config, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// withRetry calls fn until it succeeds, fails with anything but ESTALE, or
// has been retried MaxRetries times, then reports the call.
func withRetry[T any](path, op string, config RetryConfig, fn func() (T, error)) (T, error) {
	call := Call{Volume: config.volume(path), Op: op}
	start := time.Now()
	backoff := config.InitialBackoff

	var result T
	var err error
	for {
		call.Attempts++
		result, err = fn()
		if err == nil || !IsStale(err) {
			break
		}
		call.Stale++
		if call.Attempts > config.MaxRetries {
			logging.Warn("NFS %s failed after %d retries for %s: %v", op, config.MaxRetries, path, err)
			break
		}
		logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
			op, path, backoff, call.Attempts, config.MaxRetries)
		time.Sleep(backoff)
		backoff = min(backoff*2, config.MaxBackoff)
	}

	if call.Recovered() {
		logging.Info("NFS %s succeeded on retry %d for %s", op, call.Attempts-1, path)
	}
	call.Duration = time.Since(start)
	call.Err = err
	report(call)
	return result, err
}
