// Package decoder decodes images and computes their perceptual hashes.
//
// A perceptual hash is a 64-bit difference hash (dHash): the image is reduced
// to 9x8 grayscale and each bit records whether a pixel is brighter than its
// right-hand neighbour. Visually similar images have hashes a small Hamming
// distance apart.
//
// Decoding is memory hungry, so concurrent decodes are bounded by a token
// pool sized from decoder.max_threads. Computed hashes are kept in an LRU
// cache whose budget is cache.decoder_cache_size_mb. The Decoder observes the
// configuration store and re-tunes both when their keys change.
//
// Supported formats: JPEG, PNG, GIF, BMP, TIFF and WebP.
package decoder
