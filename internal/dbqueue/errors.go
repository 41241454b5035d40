package dbqueue

import "errors"

// Sentinel errors for queue operations
var (
	// ErrStopped is returned for work submitted after Stop
	ErrStopped = errors.New("database queue stopped")

	// ErrNotFound is reported for ids that never existed or whose result was evicted
	ErrNotFound = errors.New("operation result not found")

	// ErrPanic wraps a panic raised inside an operation
	ErrPanic = errors.New("operation panicked")

	// ErrNilOperation indicates a nil operation was submitted
	ErrNilOperation = errors.New("operation cannot be nil")
)
