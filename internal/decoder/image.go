package decoder

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP format support

	"media-dedup/internal/filesystem"
	"media-dedup/internal/logging"
)

const (
	// MaxImageDimension is the maximum width or height we'll decode
	MaxImageDimension = 16384

	// MaxImagePixels is the maximum total pixels (width * height) we'll decode.
	// A 64MP image uses ~256MB in RGBA.
	MaxImagePixels = 64_000_000
)

// ErrImageTooLarge is returned for images beyond the decode limits.
var ErrImageTooLarge = errors.New("image exceeds decode limits")

// ImageDimensions holds image width, height and format name
type ImageDimensions struct {
	Width  int
	Height int
	Format string
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	return decodeDimensions(file)
}

func decodeDimensions(r io.Reader) (*ImageDimensions, error) {
	config, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
		Format: format,
	}, nil
}

// LoadImageConstrained decodes the image at path, refusing images whose
// header reports more than maxDimension on a side or maxPixels in total.
// The returned format is empty if the header could not be read.
func LoadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, string, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	dimensions, err := decodeDimensions(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image header: %w", err)
	}

	width, height := dimensions.Width, dimensions.Height
	if width > maxDimension || height > maxDimension || width*height > maxPixels {
		return nil, dimensions.Format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, width, height)
	}
	logging.Debug("Image %s dimensions: %dx%d (%s)", path, width, height, dimensions.Format)

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, dimensions.Format, err
	}
	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, dimensions.Format, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, dimensions.Format, nil
}
