// Package fingerprint computes content digests of media files.
//
// Three modes trade speed for certainty:
//   - fast: BLAKE2b-256 over the file size and its first and last 64 KiB
//   - balanced: BLAKE2b-256 over the full content
//   - quality: the balanced digest, plus a perceptual hash for decodable
//     images, computed by the decoder package
//
// Digests are hex encoded. Digests from different modes are never compared
// with each other.
package fingerprint
