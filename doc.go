// Package main provides the entry point for the media-dedup server.
//
// media-dedup catalogs one or more media directories, fingerprints every
// file and groups duplicates: byte-identical files in every mode, and
// visually similar images in quality mode. Runtime settings live in a JSON
// or YAML config file that can be edited, or patched through the HTTP API,
// while the server runs; every component follows its keys without a
// restart.
//
// # Application Lifecycle
//
//  1. Memory Configuration: sets GOMEMLIMIT from MEMORY_LIMIT when needed
//  2. Bootstrap: resolves flags and environment variables, checks that the
//     database directory is writable
//  3. Runtime Configuration: loads the config file over built-in defaults
//  4. Component Initialization (see package internal/app):
//     - Database with a query-only read pool and a serialized write queue
//     - Scan, processing and decoder token pools
//     - Scanner, processor and memory monitor
//     - Scheduler for periodic scans and processing
//     - HTTP listener manager, rebinding on server_host/server_port changes
//  5. Graceful Shutdown on SIGINT or SIGTERM
//
// # HTTP Servers
//
//  1. API server (server_port, default 8080): health probes, configuration,
//     catalog statistics, duplicate groups and operations
//  2. Metrics server (--metrics-port, default 9090, optional): /metrics
//
// # Bootstrap Settings
//
// Each setting is read from its flag, then DEDUP_<NAME>, then <NAME>:
//
//   - CONFIG_FILE (--config): runtime config file
//   - DATABASE_DIR (--database-dir): catalog database directory (default /database)
//   - METRICS_PORT (--metrics-port): metrics port (default 9090)
//   - METRICS_ENABLED (--metrics): serve metrics (default true)
//   - LOG_HEALTH_CHECKS (--log-health-checks): log probe requests (default true)
//   - WATCH_CONFIG (--watch-config): reload the config file on change (default true)
//   - SHUTDOWN_TIMEOUT (--shutdown-timeout): graceful shutdown limit (default 30s)
//
// LOG_LEVEL, GOMEMLIMIT, MEMORY_LIMIT and MEMORY_RATIO are read directly.
//
// # Graceful Shutdown
//
//  1. Stop the scheduler
//  2. Stop the API and metrics servers
//  3. Cancel running scans and processing
//  4. Drain the write queue
//  5. Release worker pools, decoder and memory monitor
//  6. Close the database
//
// # Build Requirements
//
// CGO is required for SQLite:
//
//	go build -o media-dedup .
//
// # Related Packages
//
//   - [media-dedup/internal/app]: component wiring and lifecycle
//   - [media-dedup/internal/config]: reactive configuration store
//   - [media-dedup/internal/handlers]: HTTP API
//   - [media-dedup/internal/scanner]: media directory cataloging
//   - [media-dedup/internal/processor]: fingerprinting and duplicate detection
//   - [media-dedup/internal/startup]: bootstrap and startup logging
package main
