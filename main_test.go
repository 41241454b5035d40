package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"media-dedup/internal/startup"

	"github.com/spf13/viper"
)

func TestRootCommand_Flags(t *testing.T) {
	v := viper.New()
	cmd := newRootCommand(v)

	err := cmd.ParseFlags([]string{
		"--config", "/etc/dedup/config.yaml",
		"--database-dir", "/var/lib/dedup",
		"--metrics-port", "9191",
		"--metrics=false",
		"--shutdown-timeout", "45s",
	})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	if got := v.GetString(startup.KeyConfigFile); got != "/etc/dedup/config.yaml" {
		t.Errorf("config_file = %q", got)
	}
	if got := v.GetString(startup.KeyDatabaseDir); got != "/var/lib/dedup" {
		t.Errorf("database_dir = %q", got)
	}
	if got := v.GetInt(startup.KeyMetricsPort); got != 9191 {
		t.Errorf("metrics_port = %d", got)
	}
	if v.GetBool(startup.KeyMetricsEnabled) {
		t.Error("metrics_enabled = true, want false")
	}
	if got := v.GetDuration(startup.KeyShutdownTimeout); got != 45*time.Second {
		t.Errorf("shutdown_timeout = %v", got)
	}
	// Untouched flags fall back to defaults.
	if !v.GetBool(startup.KeyWatchConfig) {
		t.Error("watch_config = false, want default true")
	}
}

func TestRootCommand_EnvironmentBelowFlags(t *testing.T) {
	t.Setenv("DEDUP_DATABASE_DIR", "/from/env")
	t.Setenv("METRICS_PORT", "9292")

	v := viper.New()
	cmd := newRootCommand(v)
	if err := cmd.ParseFlags([]string{"--metrics-port", "9393"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	if got := v.GetString(startup.KeyDatabaseDir); got != "/from/env" {
		t.Errorf("database_dir = %q, want value from DEDUP_DATABASE_DIR", got)
	}
	if got := v.GetInt(startup.KeyMetricsPort); got != 9393 {
		t.Errorf("metrics_port = %d, want flag value", got)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "media-dedup ") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestRootCommand_RejectsArguments(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand(viper.New())
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a positional argument")
	}
}

func TestWithSignalCancel_FollowsParent(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancelCause(context.Background())
	ctx := withSignalCancel(parent)

	cause := errors.New("stop")
	cancel(cause)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
	if !errors.Is(context.Cause(ctx), cause) {
		t.Errorf("Cause = %v, want %v", context.Cause(ctx), cause)
	}
}
