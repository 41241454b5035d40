package mediatypes

import (
	"testing"
)

func testCategories() *Categories {
	return NewCategories(map[string]map[string]bool{
		"images": {"jpg": true, ".PNG": true, "heic": false},
		"videos": {"mp4": true, "mkv": true},
		"zzz":    {"jpg": true, "txt": true},
	})
}

func TestCategoriesLookup(t *testing.T) {
	cats := testCategories()

	tests := []struct {
		name string
		ext  string
		want Category
	}{
		{
			name: "JPEG image",
			ext:  ".jpg",
			want: CategoryImages,
		},
		{
			name: "Uppercase extension",
			ext:  ".JPG",
			want: CategoryImages,
		},
		{
			name: "Configured with dot and uppercase",
			ext:  ".png",
			want: CategoryImages,
		},
		{
			name: "Extension without dot",
			ext:  "mp4",
			want: CategoryVideos,
		},
		{
			name: "Disabled extension",
			ext:  ".heic",
			want: CategoryOther,
		},
		{
			name: "Custom category",
			ext:  ".txt",
			want: Category("zzz"),
		},
		{
			name: "Unknown extension",
			ext:  ".xyz",
			want: CategoryOther,
		},
		{
			name: "Empty extension",
			ext:  "",
			want: CategoryOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cats.Lookup(tt.ext)
			if got != tt.want {
				t.Errorf("Lookup(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestCategoriesFirstNameWins(t *testing.T) {
	// "jpg" is enabled in both "images" and "zzz".
	if got := testCategories().Lookup(".jpg"); got != CategoryImages {
		t.Errorf("Lookup(.jpg) = %v, want images", got)
	}
}

func TestCategoriesIncludesAndLen(t *testing.T) {
	cats := testCategories()
	if !cats.Includes(".mkv") {
		t.Error("Includes(.mkv) = false")
	}
	if cats.Includes(".heic") {
		t.Error("Includes(.heic) = true for a disabled extension")
	}
	if cats.Len() != 5 {
		t.Errorf("Len() = %d, want 5", cats.Len())
	}

	var empty *Categories
	if empty.Includes(".jpg") || empty.Len() != 0 {
		t.Error("nil Categories should include nothing")
	}
}

func TestNormalizeExtension(t *testing.T) {
	tests := map[string]string{
		"jpg":   ".jpg",
		".JPG":  ".jpg",
		" Png ": ".png",
		"":      "",
	}
	for in, want := range tests {
		if got := NormalizeExtension(in); got != want {
			t.Errorf("NormalizeExtension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want string
	}{
		{
			name: "JPEG mime type",
			ext:  ".jpg",
			want: "image/jpeg",
		},
		{
			name: "PNG mime type",
			ext:  ".png",
			want: "image/png",
		},
		{
			name: "MP4 mime type",
			ext:  ".mp4",
			want: "video/mp4",
		},
		{
			name: "FLAC mime type",
			ext:  ".flac",
			want: "audio/flac",
		},
		{
			name: "Unknown extension returns octet-stream",
			ext:  ".unknown",
			want: "application/octet-stream",
		},
		{
			name: "Empty extension returns octet-stream",
			ext:  "",
			want: "application/octet-stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetMimeType(tt.ext)
			if got != tt.want {
				t.Errorf("GetMimeType(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestIsDecodableImage(t *testing.T) {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", "BMP", ".tiff"} {
		if !IsDecodableImage(ext) {
			t.Errorf("IsDecodableImage(%q) = false", ext)
		}
	}
	for _, ext := range []string{".heic", ".mp4", ".svg", ""} {
		if IsDecodableImage(ext) {
			t.Errorf("IsDecodableImage(%q) = true", ext)
		}
	}
}
