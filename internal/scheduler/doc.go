/*
Package scheduler runs the periodic scan and processing passes.

A single loop wakes on a short fixed tick. On each tick it reads
scan_interval_seconds and processing_interval_seconds from the configuration
store and runs whichever callback is due:

	s := scheduler.New(store, scheduler.DefaultTick)
	s.SetScanCallback(scanner.Scan)
	s.SetProcessCallback(processor.Process)
	s.Start()
	defer s.Stop()

Both tasks are due immediately after Start. An interval of zero or less
disables a task until it is set again. Callbacks run on the loop goroutine,
one at a time; a panic is logged and the loop carries on.

TriggerScan and TriggerProcess request an extra run as soon as the loop is
free. Stop joins the loop, so it must not be called from a callback.
*/
package scheduler
