package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"media-dedup/internal/logging"
	"media-dedup/internal/memory"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// EnvPrefix prefixes every bootstrap environment variable.
const EnvPrefix = "DEDUP"

// Bootstrap keys, as used with viper and the command-line flags.
const (
	KeyConfigFile      = "config_file"
	KeyDatabaseDir     = "database_dir"
	KeyMetricsPort     = "metrics_port"
	KeyMetricsEnabled  = "metrics_enabled"
	KeyLogHealthChecks = "log_health_checks"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyWatchConfig     = "watch_config"
)

// Bootstrap holds process-level settings. Everything that can change at
// runtime lives in the configuration file instead.
type Bootstrap struct {
	ConfigFile      string
	DatabaseDir     string
	MetricsPort     int
	MetricsEnabled  bool
	LogHealthChecks bool
	WatchConfig     bool
	ShutdownTimeout time.Duration

	// Derived paths
	DatabasePath string
}

// SetDefaults registers bootstrap defaults and environment bindings on v.
// Each key reads DEDUP_<KEY> first and the bare <KEY> second.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyConfigFile, "")
	v.SetDefault(KeyDatabaseDir, "/database")
	v.SetDefault(KeyMetricsPort, 9090)
	v.SetDefault(KeyMetricsEnabled, true)
	v.SetDefault(KeyLogHealthChecks, true)
	v.SetDefault(KeyWatchConfig, true)
	v.SetDefault(KeyShutdownTimeout, 30*time.Second)

	for _, key := range []string{KeyConfigFile, KeyDatabaseDir, KeyMetricsPort, KeyMetricsEnabled,
		KeyLogHealthChecks, KeyShutdownTimeout, KeyWatchConfig} {
		upper := strings.ToUpper(key)
		_ = v.BindEnv(key, EnvPrefix+"_"+upper, upper)
	}
}

// LoadBootstrap resolves and validates the bootstrap settings in v, which
// must have been prepared with SetDefaults.
func LoadBootstrap(v *viper.Viper) (*Bootstrap, error) {
	printBanner()
	logSystemInfo()

	logSection("CONFIGURATION")

	cfg := &Bootstrap{
		ConfigFile:      v.GetString(KeyConfigFile),
		DatabaseDir:     v.GetString(KeyDatabaseDir),
		MetricsPort:     v.GetInt(KeyMetricsPort),
		MetricsEnabled:  v.GetBool(KeyMetricsEnabled),
		LogHealthChecks: v.GetBool(KeyLogHealthChecks),
		WatchConfig:     v.GetBool(KeyWatchConfig),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}

	logging.Info("  CONFIG_FILE:        %s", orNone(cfg.ConfigFile))
	logging.Info("  DATABASE_DIR:       %s", cfg.DatabaseDir)
	logging.Info("  METRICS_PORT:       %d", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:    %v", cfg.MetricsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:  %v", cfg.LogHealthChecks)
	logging.Info("  WATCH_CONFIG:       %v", cfg.WatchConfig)
	logging.Info("  SHUTDOWN_TIMEOUT:   %v", cfg.ShutdownTimeout)
	logging.Info("  LOG_LEVEL:          %s", logging.GetLevel())

	if cfg.MetricsEnabled && (cfg.MetricsPort < 1 || cfg.MetricsPort > 65535) {
		return nil, fmt.Errorf("invalid metrics port %d", cfg.MetricsPort)
	}
	if cfg.ShutdownTimeout <= 0 {
		logging.Warn("  Invalid SHUTDOWN_TIMEOUT, using default: 30s")
		cfg.ShutdownTimeout = 30 * time.Second
	}

	logging.Info("")
	logSection("DIRECTORY SETUP")

	databaseDir, err := filepath.Abs(cfg.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	cfg.DatabaseDir = databaseDir
	cfg.DatabasePath = filepath.Join(databaseDir, "dedup.db")
	logging.Info("  Database directory (absolute): %s", databaseDir)

	if cfg.ConfigFile != "" {
		if cfg.ConfigFile, err = filepath.Abs(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to resolve config file path: %w", err)
		}
		if _, err := os.Stat(cfg.ConfigFile); err != nil {
			logging.Warn("  Config file %s is not readable yet: %v", cfg.ConfigFile, err)
		}
	}

	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	return cfg, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none, built-in defaults)"
	}
	return s
}

func logSection(title string) {
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	if !result.Configured {
		logging.Debug("  Memory limit: not configured")
		return
	}
	if result.ContainerLimit > 0 {
		logging.Info("  Memory limit:  %s of %s (%s)",
			humanize.IBytes(uint64(result.GoMemLimit)), humanize.IBytes(uint64(result.ContainerLimit)), result.Source)
		return
	}
	logging.Info("  Memory limit:  %s (%s)", humanize.IBytes(uint64(result.GoMemLimit)), result.Source)
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, readConns int) {
	logging.Info("")
	logSection("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v (%d read connections)", duration, readConns)
}

// LogScanDirectories logs the configured scan roots.
func LogScanDirectories(roots map[string]string) {
	logging.Info("")
	logSection("SCAN DIRECTORIES")
	if len(roots) == 0 {
		logging.Warn("  No scan directories configured; set scan.directories in the config file")
		return
	}
	names := make([]string, 0, len(roots))
	for name := range roots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logging.Info("  %-16s %s", name, roots[name])
	}
}

// LogSchedulerInit logs the task intervals.
func LogSchedulerInit(scanInterval, processInterval time.Duration) {
	logging.Info("")
	logSection("SCHEDULER INITIALIZATION")
	logging.Info("  Scan interval:        %s", intervalString(scanInterval))
	logging.Info("  Processing interval:  %s", intervalString(processInterval))
}

func intervalString(d time.Duration) string {
	if d <= 0 {
		return "DISABLED"
	}
	return d.String()
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the registered routes at debug level, grouped by prefix.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logSection("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Addr            string
	MetricsPort     int
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logSection("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://%s/api", config.Addr)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%d/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logSection(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

// printBanner prints the ASCII banner when stdout is a terminal; log
// collectors get only the version lines.
func printBanner() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println(`
------------------------------------------------------------
                    _ _             _          _
  _ __ ___   ___  __| (_) __ _    __| | ___  __| |_   _ _ __
 | '_ ' _ \ / _ \/ _' | |/ _' |  / _' |/ _ \/ _' | | | | '_ \
 | | | | | |  __/ (_| | | (_| | | (_| |  __/ (_| | |_| | |_) |
 |_| |_| |_|\___|\__,_|_|\__,_|  \__,_|\___|\__,_|\__,_| .__/
                                                       |_|
------------------------------------------------------------`)
	}
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logSection("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		// Write access was confirmed; a leftover file is harmless.
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
