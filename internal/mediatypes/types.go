package mediatypes

import (
	"sort"
	"strings"
)

// Category names a group of extensions, e.g. "images". Categories come from
// configuration, so any name is valid.
type Category string

const (
	// CategoryImages is the category decoded for perceptual hashing.
	CategoryImages Category = "images"
	// CategoryVideos holds video containers.
	CategoryVideos Category = "videos"
	// CategoryAudio holds audio files.
	CategoryAudio Category = "audio"
	// CategoryOther marks an extension no category claims.
	CategoryOther Category = "other"
)

// DecodableImageExtensions maps extensions that the image decoder can read.
var DecodableImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",

	// Audio
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
}

// Categories maps extensions to the category that includes them.
type Categories struct {
	byExt map[string]Category
}

// NewCategories builds a lookup from a category -> extension -> enabled
// tree, the shape of the "categories" configuration key. Extensions may be
// given with or without the leading dot. Disabled extensions are skipped.
// When two categories enable the same extension, the first by name wins.
func NewCategories(tree map[string]map[string]bool) *Categories {
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &Categories{byExt: make(map[string]Category)}
	for _, name := range names {
		for ext, enabled := range tree[name] {
			if !enabled {
				continue
			}
			ext = NormalizeExtension(ext)
			if _, taken := c.byExt[ext]; !taken {
				c.byExt[ext] = Category(name)
			}
		}
	}
	return c
}

// Lookup returns the category of ext, or CategoryOther.
func (c *Categories) Lookup(ext string) Category {
	if c == nil {
		return CategoryOther
	}
	if cat, ok := c.byExt[NormalizeExtension(ext)]; ok {
		return cat
	}
	return CategoryOther
}

// Includes reports whether some category enables ext.
func (c *Categories) Includes(ext string) bool {
	return c.Lookup(ext) != CategoryOther
}

// Len returns the number of enabled extensions.
func (c *Categories) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byExt)
}

// NormalizeExtension lowercases ext and adds a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsDecodableImage reports whether the image decoder supports ext.
func IsDecodableImage(ext string) bool {
	return DecodableImageExtensions[NormalizeExtension(ext)]
}
