package decoder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-dedup/internal/config"
)

// gradient returns an image whose brightness increases left to right, or
// right to left when reverse is set.
func gradient(w, h int, reverse bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if reverse {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Encode: %v", err)
	}
}

func TestDHash(t *testing.T) {
	t.Parallel()

	if got := DHash(gradient(90, 80, false)); got != 0 {
		t.Errorf("DHash(brightening) = %016x, want 0", got)
	}
	if got := DHash(gradient(90, 80, true)); got != ^uint64(0) {
		t.Errorf("DHash(darkening) = %016x, want all ones", got)
	}

	// Scaling an image barely moves its hash.
	a := DHash(gradient(900, 800, true))
	b := DHash(gradient(45, 40, true))
	if d := Distance(a, b); d > 4 {
		t.Errorf("Distance between scaled copies = %d", d)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0xFF, 0x0F, 4},
		{0, ^uint64(0), 64},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%x, %x) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPerceptualHash(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, gradient(64, 64, true))

	d, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()

	mod := time.Unix(1700000000, 0)
	first, err := d.PerceptualHash(context.Background(), path, 100, mod)
	if err != nil {
		t.Fatalf("PerceptualHash: %v", err)
	}
	if first != ^uint64(0) {
		t.Errorf("hash = %016x, want all ones", first)
	}
	if entries, _ := d.CacheStats(); entries != 1 {
		t.Errorf("cache entries = %d, want 1", entries)
	}

	// Served from cache, even though the file has changed on disk.
	writePNG(t, path, gradient(64, 64, false))
	cached, err := d.PerceptualHash(context.Background(), path, 100, mod)
	if err != nil || cached != first {
		t.Errorf("cached hash = %016x, %v", cached, err)
	}

	// A new version is decoded again.
	fresh, err := d.PerceptualHash(context.Background(), path, 100, mod.Add(time.Second))
	if err != nil || fresh != 0 {
		t.Errorf("fresh hash = %016x, %v; want 0", fresh, err)
	}
}

func TestPerceptualHash_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	huge := filepath.Join(dir, "wide.png")
	writePNG(t, huge, image.NewGray(image.Rect(0, 0, MaxImageDimension+1, 1)))
	corrupt := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()

	if _, err := d.PerceptualHash(context.Background(), huge, 1, time.Now()); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("huge image error = %v, want ErrImageTooLarge", err)
	}
	if _, err := d.PerceptualHash(context.Background(), corrupt, 1, time.Now()); err == nil {
		t.Error("corrupt image decoded")
	}
	if _, err := d.PerceptualHash(context.Background(), filepath.Join(dir, "missing.png"), 1, time.Now()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing image error = %v", err)
	}
	if entries, _ := d.CacheStats(); entries != 0 {
		t.Errorf("failures were cached: %d entries", entries)
	}

	d.Shutdown()
	if _, err := d.PerceptualHash(context.Background(), huge, 2, time.Now()); err == nil {
		t.Error("PerceptualHash succeeded after Shutdown")
	}
}

func TestDecoder_FollowsConfig(t *testing.T) {
	t.Parallel()

	store := config.NewStore(config.NewBus(), config.WithDefaults(config.Defaults()))
	d, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()
	store.Bus().Subscribe(d)

	if d.MaxDecoderThreads() != DefaultMaxThreads {
		t.Fatalf("threads = %d, want %d", d.MaxDecoderThreads(), DefaultMaxThreads)
	}

	if _, err := store.Set(config.KeyDecoderMaxThreads, 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if d.MaxDecoderThreads() != 5 {
		t.Errorf("threads = %d after update, want 5", d.MaxDecoderThreads())
	}

	// Out of bounds: the previous size stays.
	if _, err := store.Set(config.KeyDecoderMaxThreads, 1000); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if d.MaxDecoderThreads() != 5 {
		t.Errorf("threads = %d after invalid update, want 5", d.MaxDecoderThreads())
	}

	for i := 0; i < 10; i++ {
		d.cache.Put(filepath.Join("p", string(rune('a'+i))), uint64(i))
	}
	if _, err := store.Set(config.KeyDecoderCacheSizeMB, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if entries, bytes := d.CacheStats(); entries != 0 || bytes != 0 {
		t.Errorf("cache = %d entries, %d bytes with zero budget", entries, bytes)
	}
}

func TestSetCacheSizeMB_RejectsNegative(t *testing.T) {
	t.Parallel()

	d, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()

	if err := d.SetCacheSizeMB(-1); err == nil {
		t.Error("SetCacheSizeMB(-1) succeeded")
	}
}

func TestHashCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	// Room for three one-byte keys.
	c := newHashCache(3 * entrySize("a"))
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Put("d", 4) // evicts b

	if _, ok := c.Get("b"); ok {
		t.Error("b survived eviction")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s evicted", k)
		}
	}

	c.Put("a", 10)
	if h, _ := c.Get("a"); h != 10 {
		t.Errorf("updated hash = %d, want 10", h)
	}

	c.Resize(entrySize("a"))
	if entries, bytes, _ := c.Stats(); entries != 1 || bytes != entrySize("a") {
		t.Errorf("after shrink: %d entries, %d bytes", entries, bytes)
	}

	c.Put("this key is too long to fit", 1)
	if _, ok := c.Get("this key is too long to fit"); ok {
		t.Error("oversized entry stored")
	}
}
