package scanner

import "errors"

var (
	// ErrScanInProgress is returned when a scan is requested while one runs.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrNoDirectories is returned when scan.directories is empty.
	ErrNoDirectories = errors.New("no scan directories configured")

	// ErrStopped is returned by Scan after Stop.
	ErrStopped = errors.New("scanner stopped")
)
