// Package processor fingerprints cataloged files and rebuilds duplicate
// groups.
//
// A run reads dedup_mode once, then repeatedly fetches files without a
// current fingerprint for that mode through the database queue, hashes them
// concurrently (one processing pool token per file) and writes the results
// back in one transaction per batch. A file that cannot be read is stored
// with its error so it is not retried until it changes. Once every file is
// fingerprinted, the duplicate groups for the mode are replaced.
package processor
