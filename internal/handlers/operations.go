package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"media-dedup/internal/database"
	"media-dedup/internal/dbqueue"
	"media-dedup/internal/logging"
)

// OperationAccepted is returned for work queued on the database queue. Poll
// /api/operations/{id} for the outcome.
type OperationAccepted struct {
	OperationID uint64 `json:"operationId"`
	Status      string `json:"status"`
}

// TriggerScan requests a scan. It returns 409 while one is running.
func (h *Handlers) TriggerScan(w http.ResponseWriter, _ *http.Request) {
	if h.scanner.IsScanning() {
		writeJSONError(w, "scan already in progress", http.StatusConflict)
		return
	}
	if h.scheduler != nil {
		h.scheduler.TriggerScan()
	} else {
		h.scanner.TriggerScan()
	}
	writeJSONStatusCode(w, http.StatusAccepted, map[string]string{"status": "scan_requested"})
}

// TriggerProcess requests a processing pass. It returns 409 while one is
// running.
func (h *Handlers) TriggerProcess(w http.ResponseWriter, _ *http.Request) {
	if h.processor.IsProcessing() {
		writeJSONError(w, "processing already in progress", http.StatusConflict)
		return
	}
	if h.scheduler != nil {
		h.scheduler.TriggerProcess()
	} else {
		h.processor.TriggerProcess()
	}
	writeJSONStatusCode(w, http.StatusAccepted, map[string]string{"status": "process_requested"})
}

// ResetFingerprints queues deletion of every fingerprint and group of
// ?mode= (default: configured mode).
func (h *Handlers) ResetFingerprints(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.requestMode(w, r)
	if !ok {
		return
	}
	h.enqueue(w, "reset fingerprints ("+mode+")", func(conn *sql.Conn) error {
		removed, err := database.ResetFingerprints(context.Background(), conn, mode)
		if err == nil {
			logging.Info("Reset %d %s fingerprints", removed, mode)
		}
		return err
	})
}

// Optimize queues a planner statistics refresh and WAL checkpoint.
func (h *Handlers) Optimize(w http.ResponseWriter, _ *http.Request) {
	h.enqueue(w, "optimize", func(conn *sql.Conn) error {
		return database.Optimize(context.Background(), conn)
	})
}

func (h *Handlers) enqueue(w http.ResponseWriter, name string, op func(*sql.Conn) error) {
	id := h.queue.EnqueueWrite(op)
	if id == 0 {
		writeJSONError(w, "database queue stopped", http.StatusServiceUnavailable)
		return
	}
	logging.Debug("Queued %s as operation %d", name, id)
	writeJSONStatusCode(w, http.StatusAccepted, OperationAccepted{
		OperationID: id,
		Status:      string(dbqueue.StatusPending),
	})
}

// GetOperation reports the outcome of a queued write.
func (h *Handlers) GetOperation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, "invalid operation id", http.StatusBadRequest)
		return
	}

	result := h.queue.Result(id)
	if result.Status == dbqueue.StatusNotFound {
		writeJSONStatusCode(w, http.StatusNotFound, result)
		return
	}
	writeJSONStatusCode(w, http.StatusOK, result)
}
