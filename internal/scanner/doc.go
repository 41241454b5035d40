// Package scanner catalogs media files under the configured scan directories.
//
// Each scan re-reads two keys from the configuration store:
//   - scan.directories: an object of root name to directory path
//   - categories: category -> extension -> enabled, selecting which files count
//
// Directories are read in parallel. The number of concurrent directory reads
// is bounded by the scan token pool (threading.max_scan_threads), so resizing
// the pool takes effect while a scan is running. Discovered files are written
// through the database queue in batches, one transaction per batch.
//
// After the walk, files that were not seen under a root that scanned cleanly
// are removed, along with files whose root is no longer configured. A root
// that cannot be read (an unmounted share, for example) keeps its catalog
// entries. Every scan is recorded in the scan_runs table.
//
// Hidden files and directories (prefixed with '.') and symbolic links are
// skipped. Only one scan runs at a time.
package scanner
