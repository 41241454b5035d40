package workers

import (
	"os"
	"runtime"
	"strconv"

	"media-dedup/internal/logging"
)

// OverrideEnv names the environment variable that replaces the computed
// soft limit.
const OverrideEnv = "DEDUP_WORKERS"

// SoftLimit is the pool size above which the host is likely oversubscribed:
// twice GOMAXPROCS, so container CPU limits are respected. A positive
// DEDUP_WORKERS replaces the computed value.
func SoftLimit() int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			return n
		}
		logging.Debug("Ignoring %s=%q: not a positive integer", OverrideEnv, override)
	}
	return 2 * runtime.GOMAXPROCS(0)
}

// Advise logs a warning when the pool called name is sized above SoftLimit.
// It never rejects the size and reports whether it warned.
func Advise(name string, n int) bool {
	limit := SoftLimit()
	if n <= limit {
		return false
	}
	logging.Warn("Pool %s size %d exceeds the soft limit %d (GOMAXPROCS=%d); expect contention",
		name, n, limit, runtime.GOMAXPROCS(0))
	return true
}
