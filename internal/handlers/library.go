package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"media-dedup/internal/config"
	"media-dedup/internal/database"
	"media-dedup/internal/fingerprint"
	"media-dedup/internal/logging"
	"media-dedup/internal/streaming"
)

// StatsResponse is the library summary for one mode.
type StatsResponse struct {
	database.Stats
	DecoderCacheEntries int   `json:"decoderCacheEntries"`
	DecoderCacheBytes   int64 `json:"decoderCacheBytes"`
}

// DuplicatesResponse lists the duplicate groups of one mode.
type DuplicatesResponse struct {
	Mode   string                    `json:"mode"`
	Kind   string                    `json:"kind,omitempty"`
	Groups []database.DuplicateGroup `json:"groups"`
}

// requestMode returns ?mode= or the configured mode, writing a 400 and
// reporting false when it is not a known mode.
func (h *Handlers) requestMode(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		raw = h.store.GetString(config.KeyDedupMode, string(fingerprint.ModeBalanced))
	}
	mode, err := fingerprint.ParseMode(raw)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return string(mode), true
}

// requestKind returns ?kind=, which may be empty, writing a 400 and
// reporting false when it is neither exact nor similar.
func requestKind(w http.ResponseWriter, r *http.Request) (string, bool) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != database.KindExact && kind != database.KindSimilar {
		writeJSONError(w, "kind must be exact or similar", http.StatusBadRequest)
		return "", false
	}
	return kind, true
}

func (h *Handlers) loadGroups(ctx context.Context, mode, kind string) ([]database.DuplicateGroup, error) {
	var groups []database.DuplicateGroup
	err := h.db.ReadOnly(ctx, func(conn *sql.Conn) error {
		var err error
		groups, err = database.Groups(ctx, conn, mode, kind)
		return err
	})
	return groups, err
}

// GetStats returns library statistics for ?mode= (default: configured mode).
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.requestMode(w, r)
	if !ok {
		return
	}

	var stats database.Stats
	err := h.db.ReadOnly(r.Context(), func(conn *sql.Conn) error {
		var err error
		stats, err = database.CalculateStats(r.Context(), conn, mode)
		return err
	})
	if err != nil {
		logging.Error("Failed to calculate stats: %v", err)
		writeJSONError(w, "failed to calculate stats", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{Stats: stats}
	if h.decoder != nil {
		resp.DecoderCacheEntries, resp.DecoderCacheBytes = h.decoder.CacheStats()
	}
	writeJSONStatusCode(w, http.StatusOK, resp)
}

// GetDuplicates returns the duplicate groups for ?mode=, optionally only
// ?kind=exact or ?kind=similar, largest reclaimable size first. ?limit=
// caps the number of groups.
func (h *Handlers) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.requestMode(w, r)
	if !ok {
		return
	}
	kind, ok := requestKind(w, r)
	if !ok {
		return
	}

	groups, err := h.loadGroups(r.Context(), mode, kind)
	if err != nil {
		logging.Error("Failed to list duplicate groups: %v", err)
		writeJSONError(w, "failed to list duplicates", http.StatusInternalServerError)
		return
	}

	if limit := queryInt(r, "limit", 0); limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	if groups == nil {
		groups = []database.DuplicateGroup{}
	}
	writeJSONStatusCode(w, http.StatusOK, DuplicatesResponse{Mode: mode, Kind: kind, Groups: groups})
}

// ExportDuplicates streams every duplicate group for ?mode= and ?kind= as
// newline-delimited JSON, one group per line.
func (h *Handlers) ExportDuplicates(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.requestMode(w, r)
	if !ok {
		return
	}
	kind, ok := requestKind(w, r)
	if !ok {
		return
	}

	groups, err := h.loadGroups(r.Context(), mode, kind)
	if err != nil {
		logging.Error("Failed to export duplicate groups: %v", err)
		writeJSONError(w, "failed to list duplicates", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "duplicates-"+mode+".ndjson"))
	stats, err := streaming.StreamLines(r.Context(), w, groups, streaming.DefaultConfig())
	if err != nil {
		if !errors.Is(err, streaming.ErrClientGone) {
			logging.Warn("Duplicate export stopped after %d groups: %v", stats.Records, err)
		}
		return
	}
	logging.Debug("Exported %d duplicate groups (%s) in %v", stats.Records, mode, stats.Duration)
}

// GetScans returns recent scan runs, newest first.
func (h *Handlers) GetScans(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	var runs []database.ScanRun
	err := h.db.ReadOnly(r.Context(), func(conn *sql.Conn) error {
		var err error
		runs, err = database.RecentScanRuns(r.Context(), conn, limit)
		return err
	})
	if err != nil {
		logging.Error("Failed to list scan runs: %v", err)
		writeJSONError(w, "failed to list scans", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.ScanRun{}
	}
	writeJSONStatusCode(w, http.StatusOK, runs)
}
