// Package metrics provides Prometheus instrumentation for the media
// deduplication server.
//
// Every collector is a package-level promauto variable prefixed with
// "media_dedup_", so importing the package registers them with the default
// registry. Packages update them directly:
//
//	metrics.DBQueueDepth.Set(float64(len(q.ops)))
//	metrics.PoolCapacity.WithLabelValues("db-read").Set(4)
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests.
//   - Configuration: applied updates by source, changed keys, current
//     version, registered observers, observer panics, failed loads and
//     rejected patches.
//   - Pools: capacity, available, active and waiting callers per pool
//     ("db-read", "processing", "scan", "decoder").
//   - Database queue: depth, executed operations by kind, execution and wait
//     time, SQLITE_BUSY retries and retained results.
//   - Database and filesystem: query counts and durations, file sizes, and
//     NFS-aware retry statistics.
//   - Scheduler and server: task runs and failures, listener restarts.
//   - Scanner, processor and decoder: run counts and durations, files seen,
//     fingerprints per mode, decode results and hash cache efficiency.
//   - Duplicates: groups by mode and kind, duplicate files, reclaimable bytes.
//
// InitializeMetrics pre-populates label combinations so dashboards see every
// series from the first scrape. The Collector periodically copies catalog
// statistics and database file sizes into gauges.
package metrics
