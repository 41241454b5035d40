// Package app assembles the dedup server from its components and owns
// their lifetime.
//
// New builds everything from the bootstrap settings: the configuration
// store (loaded from the config file over the built-in defaults), the
// SQLite database with its read pool, the write queue, the scan and
// processing token pools, the decoder, the scanner and processor, the
// scheduler and the HTTP listener manager. Components that follow the
// configuration are subscribed to the store's bus:
//
//	threading.database_threads        read connection pool
//	threading.max_scan_threads        scan token pool
//	threading.max_processing_threads  processing token pool
//	decoder.*, cache.*                decoder
//	scan_interval_seconds, ...        scheduler
//	server_host, server_port          listener
//	log_level                         logger
//
// Start opens the listeners and starts the scheduler; Run does the same and
// blocks until its context ends. Shutdown stops components in dependency
// order so that queued writes reach the database before it closes:
//
//	scheduler, listeners, scanner and processor, write queue (drained),
//	token pools, decoder, memory monitor, config watcher, database
package app
