package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"media-dedup/internal/config"
	"media-dedup/internal/logging"
)

// ConfigResponse is the current configuration document.
type ConfigResponse struct {
	Version int64          `json:"version"`
	Path    string         `json:"path,omitempty"`
	Config  map[string]any `json:"config"`
}

// ConfigUpdateResponse describes an applied patch.
type ConfigUpdateResponse struct {
	Version     int64    `json:"version"`
	ChangedKeys []string `json:"changedKeys"`
	Saved       bool     `json:"saved"`
}

// GetConfig returns the effective configuration.
func (h *Handlers) GetConfig(w http.ResponseWriter, _ *http.Request) {
	snap := h.store.Snapshot()
	writeJSONStatusCode(w, http.StatusOK, ConfigResponse{
		Version: snap.Version(),
		Path:    h.store.Path(),
		Config:  snap.ToMap(),
	})
}

// PatchConfig merges a JSON object into the configuration. The result must
// pass schema validation or nothing changes. When the store was loaded from
// a file, the new document is written back to it.
func (h *Handlers) PatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&patch); err != nil {
		writeJSONError(w, "request body must be a JSON object: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(patch) == 0 {
		writeJSONError(w, "empty patch", http.StatusBadRequest)
		return
	}

	event, err := h.store.UpdateValidated(patch)
	switch {
	case errors.Is(err, config.ErrValidation):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, config.ErrInvalidPatch):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		logging.Error("Config update failed: %v", err)
		writeJSONError(w, "config update failed", http.StatusInternalServerError)
		return
	}

	resp := ConfigUpdateResponse{
		Version:     event.Version,
		ChangedKeys: event.ChangedKeys,
	}
	if resp.ChangedKeys == nil {
		resp.ChangedKeys = []string{}
	}
	if path := h.store.Path(); path != "" && len(event.ChangedKeys) > 0 {
		if err := h.store.SaveFile(path); err != nil {
			logging.Warn("Config updated but not saved to %s: %v", path, err)
		} else {
			resp.Saved = true
		}
	}

	logging.Info("Config updated via API: %v", event.ChangedKeys)
	writeJSONStatusCode(w, http.StatusOK, resp)
}

// GetConfigHistory returns recent configuration changes, optionally only
// those touching ?key=.
func (h *Handlers) GetConfigHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	history := h.store.History()
	if history == nil {
		writeJSONStatusCode(w, http.StatusOK, []config.Change{})
		return
	}

	var changes []config.Change
	if key := r.URL.Query().Get("key"); key != "" {
		changes = history.ForKey(key, limit)
	} else {
		changes = history.Recent(limit)
	}
	if changes == nil {
		changes = []config.Change{}
	}
	writeJSONStatusCode(w, http.StatusOK, changes)
}
