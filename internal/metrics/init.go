package metrics

import "media-dedup/internal/filesystem"

// InitializeMetrics pre-populates the expected label combinations so that
// every metric is exported from the first Prometheus scrape. Call it once at
// startup.
func InitializeMetrics() {
	for _, source := range []string{"load", "update", "watch"} {
		ConfigUpdatesTotal.WithLabelValues(source)
	}

	for _, pool := range []string{"db-read", "processing", "scan", "decoder"} {
		PoolCapacity.WithLabelValues(pool)
		PoolAvailable.WithLabelValues(pool)
		PoolActive.WithLabelValues(pool)
		PoolWaiters.WithLabelValues(pool)
		PoolFactoryFailures.WithLabelValues(pool)
	}

	for _, kind := range []string{"read", "write"} {
		DBQueueOperationsTotal.WithLabelValues(kind, "success")
		DBQueueOperationsTotal.WithLabelValues(kind, "error")
		DBQueueOperationDuration.WithLabelValues(kind)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"initialize_schema", "upsert_files", "delete_missing_files",
		"save_fingerprint", "replace_groups", "record_scan_run", "unprocessed_files", "fingerprinted_files",
		"groups", "stats", "reset_fingerprints", "optimize"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	// Scan roots are named by configuration and appear on first use.
	for _, vol := range []string{"database", filesystem.UnknownVolume} {
		for _, op := range []string{"stat", "open", "readdir"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, task := range []string{"scan", "process"} {
		SchedulerRunsTotal.WithLabelValues(task, "interval")
		SchedulerRunsTotal.WithLabelValues(task, "manual")
		SchedulerCallbackFailures.WithLabelValues(task)
		SchedulerLastRunTimestamp.WithLabelValues(task)
	}

	for _, result := range []string{"success", "error", "restored"} {
		ServerRestartsTotal.WithLabelValues(result)
	}

	for _, mode := range []string{"fast", "balanced", "quality"} {
		FingerprintsTotal.WithLabelValues(mode, "success")
		FingerprintsTotal.WithLabelValues(mode, "error")
		FingerprintDuration.WithLabelValues(mode)
		DuplicateGroups.WithLabelValues(mode, "exact")
		DuplicateGroups.WithLabelValues(mode, "similar")
		DuplicateFiles.WithLabelValues(mode)
		ReclaimableBytes.WithLabelValues(mode)
	}

	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "unknown"} {
		DecoderDecodesTotal.WithLabelValues(format, "success")
		DecoderDecodesTotal.WithLabelValues(format, "error")
	}

	for _, category := range []string{"images", "videos", "audio"} {
		MediaFilesTotal.WithLabelValues(category)
	}
}
