package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"media-dedup/internal/config"
	"media-dedup/internal/database"
	"media-dedup/internal/dbqueue"
	"media-dedup/internal/decoder"
	"media-dedup/internal/processor"
	"media-dedup/internal/scanner"
	"media-dedup/internal/scheduler"
)

// Handlers serves the dedup API.
type Handlers struct {
	store     *config.Store
	db        *database.Database
	queue     *dbqueue.Queue
	scanner   *scanner.Scanner
	processor *processor.Processor
	scheduler *scheduler.Scheduler
	decoder   *decoder.Decoder
	startTime time.Time
}

// Deps lists the components the handlers read from. Decoder may be nil.
type Deps struct {
	Store     *config.Store
	DB        *database.Database
	Queue     *dbqueue.Queue
	Scanner   *scanner.Scanner
	Processor *processor.Processor
	Scheduler *scheduler.Scheduler
	Decoder   *decoder.Decoder
}

// New creates the handlers.
func New(deps Deps) *Handlers {
	return &Handlers{
		store:     deps.Store,
		db:        deps.DB,
		queue:     deps.Queue,
		scanner:   deps.Scanner,
		processor: deps.Processor,
		scheduler: deps.Scheduler,
		decoder:   deps.Decoder,
		startTime: time.Now(),
	}
}

// RegisterRoutes adds every route to r. It is run again on each listener
// restart, against a fresh router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", h.GetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", h.PatchConfig).Methods(http.MethodPatch)
	api.HandleFunc("/config/history", h.GetConfigHistory).Methods(http.MethodGet)

	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/duplicates", h.GetDuplicates).Methods(http.MethodGet)
	api.HandleFunc("/duplicates/export", h.ExportDuplicates).Methods(http.MethodGet)
	api.HandleFunc("/scans", h.GetScans).Methods(http.MethodGet)

	api.HandleFunc("/scan", h.TriggerScan).Methods(http.MethodPost)
	api.HandleFunc("/process", h.TriggerProcess).Methods(http.MethodPost)
	api.HandleFunc("/fingerprints/reset", h.ResetFingerprints).Methods(http.MethodPost)
	api.HandleFunc("/maintenance/optimize", h.Optimize).Methods(http.MethodPost)
	api.HandleFunc("/operations/{id:[0-9]+}", h.GetOperation).Methods(http.MethodGet)
}
