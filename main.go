package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-dedup/internal/app"
	"media-dedup/internal/memory"
	"media-dedup/internal/startup"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand(viper.New()).Execute(); err != nil {
		startup.LogFatal("%v", err)
	}
}

// newRootCommand builds the server command. Bootstrap settings resolve into
// v from flags, then DEDUP_-prefixed and bare environment variables, then
// defaults.
func newRootCommand(v *viper.Viper) *cobra.Command {
	var schedulerTick time.Duration

	cmd := &cobra.Command{
		Use:   "media-dedup",
		Short: "Find duplicate media files",
		Long: `media-dedup catalogs the configured media directories, fingerprints
every file and groups exact and visually similar duplicates. Runtime
settings live in the config file and can be changed while it runs, by
editing the file or through the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(withSignalCancel(cmd.Context()), v, app.Options{SchedulerTick: schedulerTick})
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "runtime config file (JSON or YAML)")
	flags.String("database-dir", "/database", "directory holding the catalog database")
	flags.Int("metrics-port", 9090, "port for the Prometheus endpoint")
	flags.Bool("metrics", true, "serve Prometheus metrics")
	flags.Bool("log-health-checks", true, "log requests to the health probes")
	flags.Bool("watch-config", true, "reload the config file when it changes")
	flags.Duration("shutdown-timeout", 30*time.Second, "time allowed for a graceful shutdown")
	flags.DurationVar(&schedulerTick, "scheduler-tick", 0, "how often the scheduler checks for due tasks (default 10s)")

	startup.SetDefaults(v)
	for key, flag := range map[string]string{
		startup.KeyConfigFile:      "config",
		startup.KeyDatabaseDir:     "database-dir",
		startup.KeyMetricsPort:     "metrics-port",
		startup.KeyMetricsEnabled:  "metrics",
		startup.KeyLogHealthChecks: "log-health-checks",
		startup.KeyWatchConfig:     "watch-config",
		startup.KeyShutdownTimeout: "shutdown-timeout",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := startup.GetBuildInfo()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "media-dedup %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
			return err
		},
	}
}

func run(ctx context.Context, v *viper.Viper, opts app.Options) error {
	memResult := memory.ConfigureFromEnv()

	bootstrap, err := startup.LoadBootstrap(v)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	startup.LogMemoryConfig(memResult)

	opts.Bootstrap = bootstrap
	a, err := app.New(opts)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// withSignalCancel returns a context cancelled on SIGINT or SIGTERM, with
// the signal name as its cause.
func withSignalCancel(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signals:
			cancel(errors.New(sig.String()))
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
