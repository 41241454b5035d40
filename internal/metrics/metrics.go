package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_dedup_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Configuration metrics
var (
	ConfigUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_config_updates_total",
			Help: "Configuration changes applied, by source",
		},
		[]string{"source"}, // "load", "update", "watch"
	)

	ConfigChangedKeysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_config_changed_keys_total",
			Help: "Total number of leaf keys changed by configuration updates",
		},
	)

	ConfigVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_config_version",
			Help: "Current configuration snapshot version",
		},
	)

	ConfigObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_config_observers",
			Help: "Number of registered configuration observers",
		},
	)

	ConfigObserverPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_config_observer_panics_total",
			Help: "Configuration observers that panicked during delivery",
		},
	)

	ConfigLoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_config_load_failures_total",
			Help: "Configuration file loads that failed",
		},
	)

	ConfigRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_config_rejected_total",
			Help: "Configuration changes refused by validation",
		},
	)
)

// Resource pool metrics
var (
	PoolCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_pool_capacity",
			Help: "Target number of handles in a pool",
		},
		[]string{"pool"},
	)

	PoolAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_pool_available",
			Help: "Idle handles in a pool",
		},
		[]string{"pool"},
	)

	PoolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_pool_active",
			Help: "Handles on loan from a pool",
		},
		[]string{"pool"},
	)

	PoolWaiters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_pool_waiters",
			Help: "Callers blocked waiting for a pool handle",
		},
		[]string{"pool"},
	)

	PoolFactoryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_pool_factory_failures_total",
			Help: "Failures creating pool handles",
		},
		[]string{"pool"},
	)
)

// Database access queue metrics
var (
	DBQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_db_queue_depth",
			Help: "Operations waiting in the database queue",
		},
	)

	DBQueueOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_db_queue_operations_total",
			Help: "Database queue operations executed",
		},
		[]string{"kind", "status"}, // kind: "read", "write"
	)

	DBQueueOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_dedup_db_queue_operation_duration_seconds",
			Help:    "Time spent executing a database queue operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	DBQueueWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_dedup_db_queue_wait_duration_seconds",
			Help:    "Time an operation spent queued before execution",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	DBQueueRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_db_queue_busy_retries_total",
			Help: "Write retries caused by SQLITE_BUSY",
		},
	)

	DBQueueResultsRetained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_db_queue_results_retained",
			Help: "Write results currently retained for lookup",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_dedup_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBRowsAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_db_rows_affected_total",
			Help: "Rows written by database operations",
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_dedup_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_filesystem_operation_errors_total",
			Help: "Filesystem operations that failed",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_filesystem_retry_attempts_total",
			Help: "Filesystem operation retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_dedup_filesystem_retry_duration_seconds",
			Help:    "Total time spent on a retried filesystem operation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors seen",
		},
		[]string{"operation", "volume"},
	)
)

// Scheduler metrics
var (
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_scheduler_runs_total",
			Help: "Scheduled task runs, by task and trigger",
		},
		[]string{"task", "trigger"}, // trigger: "interval", "manual"
	)

	SchedulerCallbackFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_scheduler_callback_failures_total",
			Help: "Scheduled task callbacks that panicked",
		},
		[]string{"task"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_scheduler_last_run_timestamp",
			Help: "Unix time of the last run of a scheduled task",
		},
		[]string{"task"},
	)

	SchedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_scheduler_running",
			Help: "Whether the scheduler loop is running (1) or not (0)",
		},
	)
)

// HTTP server lifecycle metrics
var (
	ServerRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_server_restarts_total",
			Help: "Listener (re)starts, by result",
		},
		[]string{"result"}, // "success", "error", "restored"
	)

	ServerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_server_running",
			Help: "Whether the HTTP listener is running (1) or not (0)",
		},
	)
)

// Scanner metrics
var (
	ScannerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_scanner_runs_total",
			Help: "Total number of scan runs",
		},
	)

	ScannerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_scanner_last_run_timestamp",
			Help: "Unix time the last scan finished",
		},
	)

	ScannerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_scanner_last_run_duration_seconds",
			Help: "Duration of the last scan",
		},
	)

	ScannerFilesSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_scanner_files_seen_total",
			Help: "Media files seen by scans",
		},
	)

	ScannerFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_scanner_files_removed_total",
			Help: "Files removed from the catalog because they disappeared",
		},
	)

	ScannerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_scanner_errors_total",
			Help: "Errors encountered while scanning",
		},
	)

	ScannerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_scanner_running",
			Help: "Whether a scan is in progress (1) or not (0)",
		},
	)

	ScannerParallelWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_scanner_parallel_workers",
			Help: "Directory walkers used by the current scan",
		},
	)
)

// Processing metrics
var (
	FingerprintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_fingerprints_total",
			Help: "Files fingerprinted, by mode and result",
		},
		[]string{"mode", "status"},
	)

	FingerprintDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_dedup_fingerprint_duration_seconds",
			Help:    "Time to fingerprint one file",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)

	ProcessorRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_processor_runs_total",
			Help: "Total number of processing runs",
		},
	)

	ProcessorIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_processor_running",
			Help: "Whether a processing run is in progress (1) or not (0)",
		},
	)

	ProcessorLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_processor_last_run_duration_seconds",
			Help: "Duration of the last processing run",
		},
	)
)

// Decoder metrics
var (
	DecoderDecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_decoder_decodes_total",
			Help: "Image decodes, by format and result",
		},
		[]string{"format", "status"},
	)

	DecoderInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_decoder_in_flight",
			Help: "Decodes currently running",
		},
	)

	DecoderCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_decoder_cache_hits_total",
			Help: "Perceptual hash cache hits",
		},
	)

	DecoderCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_decoder_cache_misses_total",
			Help: "Perceptual hash cache misses",
		},
	)

	DecoderCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_decoder_cache_size_bytes",
			Help: "Estimated size of the perceptual hash cache",
		},
	)
)

// Library and duplicate metrics
var (
	MediaFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_media_files_total",
			Help: "Cataloged media files, by category",
		},
		[]string{"category"},
	)

	DuplicateGroups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_duplicate_groups",
			Help: "Duplicate groups, by mode and kind",
		},
		[]string{"mode", "kind"}, // kind: "exact", "similar"
	)

	DuplicateFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_duplicate_files",
			Help: "Files belonging to a duplicate group, by mode",
		},
		[]string{"mode"},
	)

	ReclaimableBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_reclaimable_bytes",
			Help: "Bytes freed by keeping only the largest file of each duplicate group, by mode",
		},
		[]string{"mode"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_memory_usage_ratio",
			Help: "Heap in use as a fraction of GOMEMLIMIT",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_dedup_memory_paused",
			Help: "Whether processing is paused for memory pressure (1) or not (0)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_dedup_memory_gc_pauses_total",
			Help: "Forced garbage collections under memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_dedup_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
