package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-dedup/internal/config"
	"media-dedup/internal/database"
	"media-dedup/internal/fingerprint"
	"media-dedup/internal/processor"
	"media-dedup/internal/scanner"
	"media-dedup/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Scanning      bool               `json:"scanning"`
	ScanProgress  *scanner.Progress  `json:"scanProgress,omitempty"`
	LastScan      *database.ScanRun  `json:"lastScan,omitempty"`
	Processing    bool               `json:"processing"`
	LastProcess   *processor.Summary `json:"lastProcess,omitempty"`
	QueuePending  int                `json:"queuePending"`
	ConfigVersion int64              `json:"configVersion"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// isReady reports whether reads and writes can be served.
func (h *Handlers) isReady() bool {
	return h.queue != nil && !h.queue.Stopped() && h.db != nil && h.db.ReadPool() != nil
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	scanStatus := h.scanner.GetStatus()
	lastProcess := h.processor.LastRun()

	response := HealthResponse{
		Ready:         h.isReady(),
		Version:       startup.Version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Scanning:      scanStatus.Scanning,
		ScanProgress:  scanStatus.Progress,
		LastScan:      scanStatus.LastScan,
		Processing:    h.processor.IsProcessing(),
		LastProcess:   lastProcess,
		ConfigVersion: h.store.Version(),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}
	if h.queue != nil {
		response.QueuePending = h.queue.Pending()
	}

	switch {
	case !response.Ready:
		response.Status = statusStarting
	case scanStatus.LastScan != nil && scanStatus.LastScan.Error != "",
		lastProcess != nil && lastProcess.Error != "":
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	code := http.StatusOK
	if !response.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatusCode(w, code, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.isReady() {
		writeJSONStatusCode(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatusCode(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// VersionResponse is the build information plus the active dedup mode.
type VersionResponse struct {
	startup.BuildInfo
	DedupMode string `json:"dedupMode"`
}

// GetVersion returns build information. It is never cached.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatusCode(w, http.StatusOK, VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		DedupMode: h.store.GetString(config.KeyDedupMode, string(fingerprint.ModeBalanced)),
	})
}
