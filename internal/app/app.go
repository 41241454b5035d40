package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"media-dedup/internal/config"
	"media-dedup/internal/database"
	"media-dedup/internal/dbqueue"
	"media-dedup/internal/decoder"
	"media-dedup/internal/filesystem"
	"media-dedup/internal/handlers"
	"media-dedup/internal/logging"
	"media-dedup/internal/memory"
	"media-dedup/internal/metrics"
	"media-dedup/internal/middleware"
	"media-dedup/internal/pool"
	"media-dedup/internal/processor"
	"media-dedup/internal/scanner"
	"media-dedup/internal/scheduler"
	"media-dedup/internal/server"
	"media-dedup/internal/startup"
)

// Token pool names, as seen in logs and pool metrics.
const (
	ScanPoolName       = "scan"
	ProcessingPoolName = "processing"
)

const (
	historySize      = 100
	metricsInterval  = time.Minute
	drainWarnAfter   = 10 * time.Second
	defaultThreads   = 4
	defaultScanPool  = 3
	defaultReadConns = 4
)

// Options are the process-level settings the application is built from.
type Options struct {
	Bootstrap *startup.Bootstrap

	// SchedulerTick overrides scheduler.DefaultTick when positive.
	SchedulerTick time.Duration

	// DisableScheduler leaves the scheduler stopped; scans and processing
	// then only run when requested through the API.
	DisableScheduler bool
}

// App owns every long-lived component of the server.
type App struct {
	opts      Options
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	Store   *config.Store
	Watcher *config.Watcher

	DB    *database.Database
	Queue *dbqueue.Queue

	ScanTokens       *pool.Pool[pool.Token]
	ProcessingTokens *pool.Pool[pool.Token]
	bindings         []*pool.Binding

	Decoder   *decoder.Decoder
	Memory    *memory.Monitor
	Scanner   *scanner.Scanner
	Processor *processor.Processor
	Scheduler *scheduler.Scheduler
	Server    *server.Manager
	Handlers  *handlers.Handlers

	collector     *metrics.Collector
	metricsServer *http.Server
	metricsAddr   string

	shutdownOnce sync.Once
}

// New builds the application from opts. Nothing listens or runs until
// Start.
func New(opts Options) (*App, error) {
	if opts.Bootstrap == nil {
		return nil, errors.New("bootstrap settings are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		opts:      opts,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := a.build(); err != nil {
		a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	b := a.opts.Bootstrap

	a.Store = config.NewStore(config.NewBus(),
		config.WithDefaults(config.Defaults()),
		config.WithHistory(config.NewHistory(historySize)))
	if b.ConfigFile != "" && !a.Store.Load(b.ConfigFile) {
		logging.Warn("Continuing with built-in defaults")
	}
	// LOG_LEVEL wins at startup; later edits to log_level always apply.
	if os.Getenv("LOG_LEVEL") == "" {
		applyLogLevel(a.Store)
	}
	a.Store.Bus().SubscribeFunc(func(event config.UpdateEvent) {
		if event.Has(config.KeyLogLevel) {
			applyLogLevel(a.Store)
		}
	})

	dbStart := time.Now()
	db, err := database.New(a.ctx, b.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db

	readConns := a.Store.GetInt(config.KeyDatabaseThreads, defaultReadConns)
	reads, err := db.OpenReadPool(readConns)
	if err != nil {
		return err
	}
	a.bind(reads, config.KeyDatabaseThreads, defaultReadConns)
	startup.LogDatabaseInit(time.Since(dbStart), reads.Capacity())

	queue, err := dbqueue.New(a.ctx, db.DB(), a.Store)
	if err != nil {
		return err
	}
	a.Queue = queue

	if a.ScanTokens, err = a.tokenPool(ScanPoolName, config.KeyMaxScanThreads, defaultScanPool); err != nil {
		return err
	}
	if a.ProcessingTokens, err = a.tokenPool(ProcessingPoolName, config.KeyMaxProcessingThreads, defaultThreads); err != nil {
		return err
	}

	if a.Decoder, err = decoder.New(a.Store); err != nil {
		return err
	}
	a.Store.Bus().Subscribe(a.Decoder)

	a.Memory = memory.NewMonitor(memory.DefaultConfig())

	a.Scanner = scanner.New(a.Store, a.Queue, a.ScanTokens)
	a.Processor = processor.New(a.Store, a.Queue, a.ProcessingTokens, a.Decoder)
	a.Processor.SetMemoryMonitor(a.Memory)
	a.updateVolumes()
	a.Store.Bus().SubscribeFunc(func(event config.UpdateEvent) {
		if event.Has(config.KeyScanDirectories) {
			a.updateVolumes()
		}
	})

	a.Scheduler = scheduler.New(a.Store, a.opts.SchedulerTick)
	a.Scheduler.SetScanCallback(a.runScan)
	a.Scheduler.SetProcessCallback(a.runProcess)
	a.Store.Bus().Subscribe(a.Scheduler)

	// Without a running scheduler loop, requests go straight to the scanner
	// and processor.
	triggers := a.Scheduler
	if a.opts.DisableScheduler {
		triggers = nil
	}

	// New files are fingerprinted right after the scan that found them.
	a.Scanner.SetOnScanComplete(func(run database.ScanRun) {
		if run.FilesSeen == 0 {
			return
		}
		if triggers != nil {
			triggers.TriggerProcess()
		} else {
			a.Processor.TriggerProcess()
		}
	})

	a.Handlers = handlers.New(handlers.Deps{
		Store:     a.Store,
		DB:        a.DB,
		Queue:     a.Queue,
		Scanner:   a.Scanner,
		Processor: a.Processor,
		Scheduler: triggers,
		Decoder:   a.Decoder,
	})

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = b.LogHealthChecks

	a.Server = server.NewManager(a.Store)
	a.Server.SetRouteRegistrar(a.Handlers.RegisterRoutes)
	a.Server.Use(
		middleware.RequestID,
		middleware.Logger(loggingConfig),
		middleware.Metrics(middleware.DefaultMetricsConfig()),
	)
	a.Store.Bus().Subscribe(a.Server)

	if b.WatchConfig && b.ConfigFile != "" {
		a.Watcher = config.NewWatcher(a.Store, b.ConfigFile, config.DefaultDebounce)
	}
	return nil
}

// tokenPool creates a worker token pool sized from key and keeps it sized.
func (a *App) tokenPool(name, key string, def int) (*pool.Pool[pool.Token], error) {
	p := pool.NewTokenPool(name)
	n := a.Store.GetInt(key, def)
	if err := p.Initialize(n); err != nil {
		return nil, fmt.Errorf("failed to size %s pool from %s=%d: %w", name, key, n, err)
	}
	a.bind(p, key, def)
	return p, nil
}

func (a *App) bind(p pool.Resizer, key string, def int) {
	binding := pool.Bind(p, a.Store, key, def)
	a.bindings = append(a.bindings, binding)
	a.Store.Bus().Subscribe(binding)
}

func applyLogLevel(store *config.Store) {
	name := store.GetString(config.KeyLogLevel, "")
	if name == "" {
		return
	}
	level, ok := logging.ParseLevel(name)
	if !ok {
		logging.Warn("Ignoring unknown %s %q", config.KeyLogLevel, name)
		return
	}
	if level != logging.GetLevel() {
		logging.SetLevel(level)
		logging.Info("Log level set to %s", level)
	}
}

func (a *App) runScan() {
	if _, err := a.Scanner.Scan(a.ctx); err != nil &&
		!errors.Is(err, scanner.ErrScanInProgress) && !errors.Is(err, scanner.ErrStopped) {
		logging.Error("Scheduled scan failed: %v", err)
	}
}

func (a *App) runProcess() {
	if _, err := a.Processor.Process(a.ctx); err != nil &&
		!errors.Is(err, processor.ErrProcessingInProgress) && !errors.Is(err, processor.ErrStopped) {
		logging.Error("Scheduled processing failed: %v", err)
	}
}

// Start opens the listeners and starts the background loops.
func (a *App) Start() error {
	b := a.opts.Bootstrap

	startup.LogScanDirectories(a.scanDirectories())

	a.Memory.Start()

	if a.Watcher != nil {
		if err := a.Watcher.Start(); err != nil {
			logging.Warn("Config file watching disabled: %v", err)
			a.Watcher = nil
		}
	}

	if b.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
		filesystem.SetObserver(metrics.NewFilesystemObserver())
		a.collector = metrics.NewCollector(&statsProvider{db: a.DB, store: a.Store}, b.DatabasePath, metricsInterval)
		a.collector.Start()
		if err := a.startMetricsServer(b.MetricsPort); err != nil {
			return err
		}
	}

	a.Server.SetShutdownTimeout(b.ShutdownTimeout)
	host := a.Store.GetString(config.KeyServerHost, "0.0.0.0")
	port := a.Store.GetInt(config.KeyServerPort, 8080)
	if err := a.Server.Start(host, port); err != nil {
		return err
	}

	startup.LogSchedulerInit(
		scheduler.IntervalDuration(a.Store.GetInt(config.KeyScanInterval, 0)),
		scheduler.IntervalDuration(a.Store.GetInt(config.KeyProcessingInterval, 0)))
	if !a.opts.DisableScheduler {
		a.Scheduler.Start()
	}

	router := mux.NewRouter()
	a.Handlers.RegisterRoutes(router)
	startup.LogHTTPRoutes(router, b.LogHealthChecks)

	startup.LogServerStarted(startup.ServerConfig{
		Addr:            a.Server.Addr(),
		MetricsPort:     b.MetricsPort,
		MetricsEnabled:  b.MetricsEnabled,
		StartupDuration: time.Since(a.startedAt),
	})
	return nil
}

func (a *App) scanDirectories() map[string]string {
	roots := make(map[string]string)
	for _, r := range a.Scanner.Roots() {
		roots[r.Name] = r.Path
	}
	return roots
}

// updateVolumes labels filesystem metrics with scan root names.
func (a *App) updateVolumes() {
	volumes := a.scanDirectories()
	if _, taken := volumes["database"]; !taken {
		volumes["database"] = a.opts.Bootstrap.DatabaseDir
	}
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(volumes))
}

func (a *App) startMetricsServer(port int) error {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	r := mux.NewRouter()
	r.Handle("/metrics", handlers.MetricsHandler()).Methods(http.MethodGet)
	a.metricsServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	a.metricsAddr = ln.Addr().String()
	logging.Info("Metrics listening on %s", a.metricsAddr)
	return nil
}

// MetricsAddr returns the metrics listener address, or "" when metrics
// are disabled.
func (a *App) MetricsAddr() string {
	return a.metricsAddr
}

// Run starts the application and blocks until ctx is done, then shuts
// down within the bootstrap shutdown timeout. Cancel ctx with a cause to
// have it logged.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	startup.LogShutdownInitiated(shutdownReason(ctx))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.Bootstrap.ShutdownTimeout)
	defer cancel()
	a.Shutdown(shutdownCtx)
	startup.LogShutdownComplete()
	return nil
}

// shutdownReason names what ended ctx: the cause it was cancelled with,
// such as a signal name, or its plain error.
func shutdownReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return "shutdown requested"
}

// Shutdown stops every component: scheduler, listeners, scan and
// processing work, the write queue once drained, the pools, then the
// database. It is safe to call more than once and on a partly built App.
func (a *App) Shutdown(ctx context.Context) {
	a.shutdownOnce.Do(func() { a.shutdown(ctx) })
}

func (a *App) shutdown(ctx context.Context) {
	a.cancel()

	if a.Scheduler != nil {
		startup.LogShutdownStep("Stopping scheduler")
		a.Scheduler.Stop()
		startup.LogShutdownStepComplete("Scheduler stopped")
	}

	if a.Server != nil {
		startup.LogShutdownStep("Shutting down HTTP server")
		a.Server.Wait()
		if err := a.Server.Stop(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("HTTP server stopped")
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}
	if a.collector != nil {
		a.collector.Stop()
		filesystem.SetObserver(nil)
	}

	if a.Processor != nil {
		a.Processor.Stop()
	}
	if a.Scanner != nil {
		a.Scanner.Stop()
	}

	if a.Queue != nil {
		startup.LogShutdownStep("Draining database queue")
		a.Queue.WaitForCompletion(drainWarnAfter)
		a.Queue.Stop()
		startup.LogShutdownStepComplete("Database queue stopped")
	}

	if a.ScanTokens != nil {
		a.ScanTokens.Shutdown()
	}
	if a.ProcessingTokens != nil {
		a.ProcessingTokens.Shutdown()
	}
	if a.Decoder != nil {
		a.Decoder.Shutdown()
	}
	if a.Memory != nil {
		a.Memory.Stop()
	}
	if a.Watcher != nil {
		a.Watcher.Stop()
	}

	if a.DB != nil {
		startup.LogShutdownStep("Closing database")
		if err := a.DB.Close(); err != nil {
			logging.Error("Error closing database: %v", err)
		} else {
			startup.LogShutdownStepComplete("Database closed")
		}
	}
}

// statsProvider feeds the metrics collector from the read pool. A failed
// read reports the previous figures.
type statsProvider struct {
	db    *database.Database
	store *config.Store

	mu   sync.Mutex
	last metrics.Stats
}

func (p *statsProvider) GetStats() metrics.Stats {
	mode := p.store.GetString(config.KeyDedupMode, database.ModeBalanced)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stats database.Stats
	err := p.db.ReadOnly(ctx, func(conn *sql.Conn) error {
		var err error
		stats, err = database.CalculateStats(ctx, conn, mode)
		return err
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		logging.Warn("Failed to collect catalog stats: %v", err)
		return p.last
	}
	p.last = metrics.Stats{
		Mode:             stats.Mode,
		TotalFiles:       stats.TotalFiles,
		FilesByCategory:  stats.FilesByCategory,
		ProcessedFiles:   stats.ProcessedFiles,
		ExactGroups:      stats.ExactGroups,
		SimilarGroups:    stats.SimilarGroups,
		DuplicateFiles:   stats.DuplicateFiles,
		ReclaimableBytes: stats.ReclaimableBytes,
	}
	return p.last
}
