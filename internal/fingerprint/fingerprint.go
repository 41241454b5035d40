package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"media-dedup/internal/filesystem"
)

// Mode selects how much of a file is hashed.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModeQuality  Mode = "quality"
)

// SampleSize is the number of bytes read from each end of a file in fast mode.
const SampleSize = 64 * 1024

// ErrUnknownMode is returned for a mode name that is not recognized.
var ErrUnknownMode = errors.New("unknown dedup mode")

// ParseMode converts a dedup_mode configuration value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFast, ModeBalanced, ModeQuality:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// UsesPerceptualHash reports whether the mode also compares images visually.
func (m Mode) UsesPerceptualHash() bool {
	return m == ModeQuality
}

// File hashes the file at path. The returned size is the size observed while
// hashing.
func File(path string, mode Mode) (digest string, size int64, err error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat %s: %w", path, err)
	}

	digest, err = Sum(f, info.Size(), mode)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return digest, info.Size(), nil
}

// Sum hashes size bytes of r according to mode.
func Sum(r io.ReaderAt, size int64, mode Mode) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	switch mode {
	case ModeFast:
		if err := sample(h, r, size); err != nil {
			return "", err
		}
	case ModeBalanced, ModeQuality:
		if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// sample writes the size, the head and the tail of r. Files no larger than
// two samples are hashed whole.
func sample(w io.Writer, r io.ReaderAt, size int64) error {
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(size))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}

	if size <= 2*SampleSize {
		_, err := io.Copy(w, io.NewSectionReader(r, 0, size))
		return err
	}
	if _, err := io.Copy(w, io.NewSectionReader(r, 0, SampleSize)); err != nil {
		return err
	}
	_, err := io.Copy(w, io.NewSectionReader(r, size-SampleSize, SampleSize))
	return err
}
