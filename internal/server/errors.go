package server

import "errors"

// Sentinel errors for listener lifecycle operations
var (
	// ErrReconfigureInProgress rejects a reconfiguration while another is running
	ErrReconfigureInProgress = errors.New("server reconfiguration already in progress")

	// ErrInvalidPort indicates a port outside 0-65535
	ErrInvalidPort = errors.New("invalid port")
)
