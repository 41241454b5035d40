package pool

import "errors"

// Sentinel errors for pool operations
var (
	// ErrInvalidSize indicates a requested size outside the pool's bounds
	ErrInvalidSize = errors.New("pool size out of bounds")

	// ErrNotInitialized indicates Acquire on a pool that was never initialized
	ErrNotInitialized = errors.New("pool not initialized")

	// ErrShutdown indicates the pool has been shut down
	ErrShutdown = errors.New("pool shut down")

	// ErrFactory wraps a failure to create a handle
	ErrFactory = errors.New("pool handle creation failed")

	// ErrNilFactory indicates a nil factory was provided
	ErrNilFactory = errors.New("pool factory cannot be nil")
)
