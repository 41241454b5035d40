package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-dedup/internal/config"
)

// run executes the command line and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{"empty object uses defaults", "a.json", `{}`, false},
		{"yaml override", "b.yaml", "server_port: 9000\ndedup_mode: quality\n", false},
		{"port out of range", "c.json", `{"server_port": 70000}`, true},
		{"unknown mode", "d.yaml", "dedup_mode: thorough\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			out, err := run(t, "validate", path)
			if tt.wantErr {
				if !errors.Is(err, errInvalid) {
					t.Fatalf("err = %v, want errInvalid", err)
				}
				if !strings.Contains(out, "bad") {
					t.Errorf("output does not report the problem: %q", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v\n%s", err, out)
			}
			if !strings.Contains(out, "is valid") {
				t.Errorf("unexpected output %q", out)
			}
		})
	}
}

func TestValidate_UnreadableFile(t *testing.T) {
	_, err := run(t, "validate", filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if errors.Is(err, errInvalid) {
		t.Error("a missing file is not a validation failure")
	}
}

func TestGet(t *testing.T) {
	path := writeConfig(t, "c.yaml", "server_port: 9000\nscan:\n  directories:\n    photos: /srv/photos\n")

	tests := []struct {
		key  string
		want string
	}{
		{"server_port", "9000"},
		{"dedup_mode", "balanced"},
		{"scan.directories.photos", "/srv/photos"},
		{"threading", `"max_scan_threads": 3`},
	}
	for _, tt := range tests {
		out, err := run(t, "get", path, tt.key)
		if err != nil {
			t.Fatalf("get %s: %v", tt.key, err)
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("get %s = %q, want it to contain %q", tt.key, out, tt.want)
		}
	}

	if _, err := run(t, "get", path, "no.such.key"); err == nil {
		t.Error("expected an error for an unset key")
	}
}

func TestSet(t *testing.T) {
	path := writeConfig(t, "c.json", `{"server_port": 9000}`)

	if _, err := run(t, "set", path, "threading.max_scan_threads", "8"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := run(t, "set", path, "scan.directories.music", "/srv/music"); err != nil {
		t.Fatalf("set string: %v", err)
	}

	store := config.NewStore(nil, config.WithDefaults(config.Defaults()))
	if _, err := store.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := store.GetInt(config.KeyMaxScanThreads, 0); got != 8 {
		t.Errorf("max_scan_threads = %d, want 8", got)
	}
	if got := store.GetString("scan.directories.music", ""); got != "/srv/music" {
		t.Errorf("scan.directories.music = %q", got)
	}
	if got := store.GetInt(config.KeyServerPort, 0); got != 9000 {
		t.Errorf("server_port = %d, want 9000 kept", got)
	}
}

func TestSet_RefusesInvalid(t *testing.T) {
	path := writeConfig(t, "c.json", `{"server_port": 9000}`)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	_, err = run(t, "set", path, "server_port", "0")
	if !errors.Is(err, config.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("refused change was written")
	}

	if _, err := run(t, "set", "--force", path, "server_port", "0"); err != nil {
		t.Fatalf("set --force: %v", err)
	}
	out, err := run(t, "get", path, "server_port")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != "0" {
		t.Errorf("server_port = %q after --force, want 0", out)
	}
}

func TestDiff(t *testing.T) {
	oldPath := writeConfig(t, "old.json", `{"server_port": 9000}`)
	newPath := writeConfig(t, "new.yaml", "server_port: 9001\nlog_level: debug\n")

	out, err := run(t, "diff", oldPath, newPath)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	for _, want := range []string{"server_port", "- 9000", "+ 9001", "log_level", "+ debug"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dedup_mode") {
		t.Errorf("diff lists an unchanged key:\n%s", out)
	}

	out, err = run(t, "diff", oldPath, oldPath)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(out, "no differences") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestDefaults(t *testing.T) {
	out, err := run(t, "defaults", "--yaml")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if !strings.Contains(out, "dedup_mode: balanced") {
		t.Errorf("defaults output missing dedup_mode:\n%s", out)
	}

	out, err = run(t, "defaults")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if !strings.Contains(out, `"server_port": 8080`) {
		t.Errorf("defaults output missing server_port:\n%s", out)
	}
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"8", "8"},
		{"true", "true"},
		{"/srv/media", "/srv/media"},
		{"debug", "debug"},
		{"1 2", "1 2"},
	}
	for _, tt := range tests {
		v, err := config.FromAny(parseValue(tt.in))
		if err != nil {
			t.Fatalf("FromAny(%q): %v", tt.in, err)
		}
		if got := v.String(); got != tt.want {
			t.Errorf("parseValue(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
