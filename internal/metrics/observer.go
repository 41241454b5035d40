package metrics

import "media-dedup/internal/filesystem"

// NewFilesystemObserver returns an observer recording filesystem calls into
// the Filesystem* collectors.
func NewFilesystemObserver() filesystem.Observer {
	return filesystem.ObserverFunc(observeFilesystemCall)
}

func observeFilesystemCall(c filesystem.Call) {
	FilesystemOperationDuration.WithLabelValues(c.Volume, c.Op).Observe(c.Duration.Seconds())
	if c.Err != nil {
		FilesystemOperationErrors.WithLabelValues(c.Volume, c.Op).Inc()
	}
	if c.Stale == 0 {
		return
	}

	FilesystemStaleErrors.WithLabelValues(c.Op, c.Volume).Add(float64(c.Stale))
	FilesystemRetryAttempts.WithLabelValues(c.Op, c.Volume).Add(float64(c.Attempts - 1))
	FilesystemRetryDuration.WithLabelValues(c.Op, c.Volume).Observe(c.Duration.Seconds())
	if c.Recovered() {
		FilesystemRetrySuccess.WithLabelValues(c.Op, c.Volume).Inc()
	} else {
		FilesystemRetryFailures.WithLabelValues(c.Op, c.Volume).Inc()
	}
}
