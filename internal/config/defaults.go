package config

// Recognized configuration keys.
const (
	KeyServerHost             = "server_host"
	KeyServerPort             = "server_port"
	KeyMaxProcessingThreads   = "threading.max_processing_threads"
	KeyMaxScanThreads         = "threading.max_scan_threads"
	KeyDatabaseThreads        = "threading.database_threads"
	KeyScanInterval           = "scan_interval_seconds"
	KeyProcessingInterval     = "processing_interval_seconds"
	KeyDecoderCacheSizeMB     = "cache.decoder_cache_size_mb"
	KeyDecoderMaxThreads      = "decoder.max_threads"
	KeyDedupMode              = "dedup_mode"
	KeySimilarityThreshold    = "dedup.similarity_threshold"
	KeyDatabaseRetryAttempts  = "database.retry.max_attempts"
	KeyDatabaseRetryBackoffMS = "database.retry.backoff_ms"
	KeyResultRetention        = "database.result_retention"
	KeyScanDirectories        = "scan.directories"
	KeyCategories             = "categories"
	KeyLogLevel               = "log_level"
)

// Defaults returns the built-in configuration tree. Loaded files are merged
// over it, so a file only needs the keys it changes.
func Defaults() map[string]any {
	return map[string]any{
		"server_host": "0.0.0.0",
		"server_port": 8080,
		"threading": map[string]any{
			"max_processing_threads": 4,
			"max_scan_threads":       3,
			"database_threads":       4,
		},
		"scan_interval_seconds":       1800,
		"processing_interval_seconds": 300,
		"cache": map[string]any{
			"decoder_cache_size_mb": 64,
		},
		"decoder": map[string]any{
			"max_threads": 2,
		},
		"dedup_mode": "balanced",
		"dedup": map[string]any{
			"similarity_threshold": 6,
		},
		"database": map[string]any{
			"result_retention": 10000,
			"retry": map[string]any{
				"max_attempts": 5,
				"backoff_ms":   50,
			},
		},
		"categories": map[string]any{
			"images": map[string]any{
				"jpg": true, "jpeg": true, "png": true, "gif": true,
				"bmp": true, "tiff": true, "tif": true, "webp": true,
			},
			"videos": map[string]any{
				"mp4": true, "mkv": true, "mov": true, "avi": true,
				"webm": true, "m4v": true, "wmv": true,
			},
			"audio": map[string]any{
				"mp3": true, "flac": true, "wav": true, "m4a": true,
				"ogg": true, "aac": true,
			},
		},
		"log_level": "info",
	}
}
