package workers

import (
	"bytes"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

func TestSoftLimit(t *testing.T) {
	computed := 2 * runtime.GOMAXPROCS(0)

	tests := []struct {
		name     string
		override string
		want     int
	}{
		{"unset", "", computed},
		{"explicit", "12", 12},
		{"one", "1", 1},
		{"zero ignored", "0", computed},
		{"negative ignored", "-3", computed},
		{"garbage ignored", "lots", computed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(OverrideEnv, tt.override)
			if got := SoftLimit(); got != tt.want {
				t.Errorf("SoftLimit() with %s=%q = %d, want %d", OverrideEnv, tt.override, got, tt.want)
			}
		})
	}
}

func TestAdvise(t *testing.T) {
	t.Setenv(OverrideEnv, "8")

	tests := []struct {
		name string
		n    int
		want bool
	}{
		{"well below", 1, false},
		{"at limit", 8, false},
		{"above limit", 9, true},
		{"far above", 64, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Advise("scan", tt.n); got != tt.want {
				t.Errorf("Advise(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestAdvise_LogsPoolName(t *testing.T) {
	t.Setenv(OverrideEnv, "2")

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	Advise("processing", 5)
	out := buf.String()
	for _, want := range []string{"processing", "5", "soft limit " + strconv.Itoa(2)} {
		if !strings.Contains(out, want) {
			t.Errorf("warning %q does not mention %q", out, want)
		}
	}
}
