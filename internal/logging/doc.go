// Package logging provides a simple leveled logging interface for the
// media deduplication server.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The initial level comes from the LOG_LEVEL (or DEBUG) environment variable.
// The level can be changed at runtime with [SetLevel]; the server does this when
// the log_level configuration key changes.
package logging
