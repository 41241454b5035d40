// Package memory configures Go's soft memory limit for containers and
// provides backpressure for memory-heavy work.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ... rest of application
//	}
//
// # Environment Variables
//
//   - GOMEMLIMIT: standard Go variable. Takes precedence when set.
//
//   - MEMORY_LIMIT: container memory limit, as a byte count (Kubernetes
//     Downward API) or a size such as "2GiB".
//
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap, between 0.0
//     and 1.0. Default 0.85. Lower it when image decoding or the SQLite page
//     cache push non-heap usage up.
//
// # Kubernetes Configuration
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// # Memory Monitoring
//
// [Monitor] samples heap usage. Above CriticalWaterMark it pauses callers of
// [Monitor.Wait] until usage drops below HighWaterMark. The processor waits
// between fingerprint batches:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if err := monitor.Wait(ctx); err != nil {
//	    return err
//	}
//
// GOMEMLIMIT is a soft limit on the Go heap only. It does not bound cgo
// allocations such as SQLite's.
package memory
