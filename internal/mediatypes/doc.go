// Package mediatypes provides shared type definitions and utilities for media file
// handling across media-dedup.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # Categories
//
// Which files are scanned is decided by configuration, as a tree of
// category -> extension -> enabled:
//
//	cats := mediatypes.NewCategories(map[string]map[string]bool{
//	    "images": {"jpg": true, "png": true},
//	    "videos": {"mp4": true, "mkv": false},
//	})
//	cats.Lookup(".JPG") // "images"
//	cats.Lookup(".mkv") // "other"
//
// # MIME Types
//
// Use GetMimeType to get the appropriate MIME type for HTTP responses:
//
//	ext := strings.ToLower(filepath.Ext(filename))
//	mimeType := mediatypes.GetMimeType(ext) // e.g., "image/jpeg"
//
// # Images
//
// IsDecodableImage reports whether the decoder can read a file, which decides
// whether it gets a perceptual hash in quality mode.
package mediatypes
