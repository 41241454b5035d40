package filesystem

import (
	"sync/atomic"
	"time"
)

// Call describes one wrapped filesystem call once its last attempt returned.
type Call struct {
	Volume   string
	Op       string // "stat", "open" or "readdir"
	Attempts int
	Stale    int // ESTALE results among the attempts
	Duration time.Duration
	Err      error
}

// Recovered reports whether the call succeeded after at least one stale
// file handle.
func (c Call) Recovered() bool {
	return c.Stale > 0 && c.Err == nil
}

// Observer receives one Call per wrapped operation. The metrics package
// provides the Prometheus implementation, which keeps this package free of
// a metrics import.
type Observer interface {
	ObserveCall(Call)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Call)

// ObserveCall calls f(c).
func (f ObserverFunc) ObserveCall(c Call) { f(c) }

type observerBox struct{ Observer }

var current atomic.Pointer[observerBox]

// SetObserver installs o for every later call. nil turns reporting off.
func SetObserver(o Observer) {
	if o == nil {
		current.Store(nil)
		return
	}
	current.Store(&observerBox{o})
}

func report(c Call) {
	if box := current.Load(); box != nil {
		box.ObserveCall(c)
	}
}
