package fingerprint

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "fast", want: ModeFast},
		{in: "balanced", want: ModeBalanced},
		{in: "quality", want: ModeQuality},
		{in: "Fast", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownMode) {
				t.Errorf("ParseMode(%q) error = %v, want ErrUnknownMode", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}

	if !ModeQuality.UsesPerceptualHash() || ModeBalanced.UsesPerceptualHash() {
		t.Error("only quality mode uses perceptual hashes")
	}
}

func TestSum_DetectsChanges(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("abcdefgh"), 3*SampleSize/8)
	middle := bytes.Clone(big)
	middle[len(middle)/2] ^= 0xFF
	tail := bytes.Clone(big)
	tail[len(tail)-1] ^= 0xFF

	sum := func(data []byte, mode Mode) string {
		t.Helper()
		d, err := Sum(bytes.NewReader(data), int64(len(data)), mode)
		if err != nil {
			t.Fatalf("Sum(%s): %v", mode, err)
		}
		return d
	}

	tests := []struct {
		name      string
		mode      Mode
		other     []byte
		wantEqual bool
	}{
		{name: "fast ignores middle bytes", mode: ModeFast, other: middle, wantEqual: true},
		{name: "fast sees tail bytes", mode: ModeFast, other: tail, wantEqual: false},
		{name: "fast sees size", mode: ModeFast, other: big[:len(big)-8], wantEqual: false},
		{name: "balanced sees middle bytes", mode: ModeBalanced, other: middle, wantEqual: false},
		{name: "quality hashes content like balanced", mode: ModeQuality, other: middle, wantEqual: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := sum(big, tt.mode), sum(tt.other, tt.mode)
			if (a == b) != tt.wantEqual {
				t.Errorf("digests equal = %v, want %v", a == b, tt.wantEqual)
			}
			if len(a) != 64 {
				t.Errorf("digest length = %d, want 64 hex chars", len(a))
			}
		})
	}

	if sum(big, ModeBalanced) != sum(big, ModeQuality) {
		t.Error("balanced and quality digests differ for the same content")
	}
	if sum(big, ModeFast) == sum(big, ModeBalanced) {
		t.Error("fast and balanced digests should differ")
	}
}

func TestSum_SmallFilesHashedWhole(t *testing.T) {
	t.Parallel()

	a := bytes.Repeat([]byte{1}, SampleSize+10)
	b := bytes.Clone(a)
	b[SampleSize] = 2

	da, _ := Sum(bytes.NewReader(a), int64(len(a)), ModeFast)
	db, _ := Sum(bytes.NewReader(b), int64(len(b)), ModeFast)
	if da == db {
		t.Error("fast mode missed a change in a file smaller than two samples")
	}
}

func TestSum_UnknownMode(t *testing.T) {
	t.Parallel()

	if _, err := Sum(bytes.NewReader(nil), 0, Mode("slow")); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("error = %v, want ErrUnknownMode", err)
	}
}

func TestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "copy of a.jpg")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("same bytes"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	da, size, err := File(a, ModeBalanced)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if size != int64(len("same bytes")) {
		t.Errorf("size = %d", size)
	}
	db, _, err := File(b, ModeBalanced)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if da != db {
		t.Error("identical files produced different digests")
	}

	if _, _, err := File(filepath.Join(dir, "missing.jpg"), ModeFast); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}
