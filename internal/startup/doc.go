// Package startup handles process bootstrap settings and startup/shutdown
// logging.
//
// # Bootstrap Settings
//
// Settings that cannot change while the server runs are read by
// [LoadBootstrap] from a viper instance prepared with [SetDefaults]. Each key
// is read from DEDUP_<KEY> first, then from the bare <KEY>, and can be
// overridden by the command-line flag of the same name:
//
//   - CONFIG_FILE: runtime configuration file, JSON or YAML (default: none)
//   - DATABASE_DIR: directory holding dedup.db (default: /database)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: enable the metrics server (default: true)
//   - LOG_HEALTH_CHECKS: log health check requests (default: true)
//   - WATCH_CONFIG: reload CONFIG_FILE when it changes (default: true)
//   - SHUTDOWN_TIMEOUT: graceful shutdown bound (default: 30s)
//
// Everything else (scan directories, thread counts, intervals, listener
// address, dedup mode) lives in the runtime configuration and can be changed
// live.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogDatabaseInit]: database initialization timing
//   - [LogScanDirectories]: configured scan roots
//   - [LogSchedulerInit]: task intervals
//   - [LogHTTPRoutes]: registered HTTP routes (debug level)
//   - [LogServerStarted]: endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownComplete]: graceful shutdown
//
// The ASCII banner is printed only when stdout is a terminal.
package startup
