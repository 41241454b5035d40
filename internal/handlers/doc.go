// Package handlers provides the HTTP API of the dedup server.
//
// Routes are added by [Handlers.RegisterRoutes], which the server manager
// runs against a fresh router each time the listener is (re)started:
//
//	GET   /health, /healthz      status, scan and processing state
//	GET   /livez, /readyz        probes
//	GET   /version               build information
//	GET   /api/config            effective configuration
//	PATCH /api/config            validated merge patch, saved to the config file
//	GET   /api/config/history    recent changes (?key=, ?limit=)
//	GET   /api/stats             library summary (?mode=)
//	GET   /api/duplicates        duplicate groups (?mode=, ?kind=, ?limit=)
//	GET   /api/duplicates/export NDJSON export, one group per line (?mode=, ?kind=)
//	GET   /api/scans             recent scan runs (?limit=)
//	POST  /api/scan              request a scan
//	POST  /api/process           request a processing pass
//	POST  /api/fingerprints/reset      queue a fingerprint reset (?mode=)
//	POST  /api/maintenance/optimize    queue a database optimize
//	GET   /api/operations/{id}   outcome of a queued write
//
// Reads use the database read pool. Writes go through the database queue and
// answer 202 with an operation ID.
package handlers
