// Package dedup groups fingerprinted files into duplicate sets.
//
// Exact groups hold files with the same content digest. In modes that use
// perceptual hashes, similar groups hold images whose hashes are within the
// similarity threshold (a Hamming distance) of each other, linked
// transitively. Each set of exact duplicates takes part in similarity
// matching through one representative, so exact copies are never reported
// twice.
//
// Every group reports the bytes reclaimable by keeping only its largest file.
package dedup
