/*
Package filesystem wraps the calls made against scan roots with retries of
NFS stale file handle errors.

Libraries are often NFS mounts. When the server side changes underneath a
client, calls fail with ESTALE and usually succeed moments later. Only that
error is retried:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())

# Metrics

Each wrapped call is reported once to the installed Observer as a Call,
labeled with the volume its path falls under. Volumes are the configured
scan roots by name plus the database directory; the application replaces
the resolver whenever scan.directories changes:

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(roots))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

With no observer installed nothing is recorded.
*/
package filesystem
