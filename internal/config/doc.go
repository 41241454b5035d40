/*
Package config holds the runtime configuration of the deduplication server
and broadcasts changes to interested components.

The configuration is a tree of Values (booleans, integers, floats, strings and
nested objects) addressed by dotted keys such as "threading.database_threads".
A Store owns the current tree as an immutable Snapshot and swaps in a new one
on every change:

	store := config.NewStore(config.NewBus(), config.WithDefaults(config.Defaults()))
	store.Load("/config/dedup.json")
	port := store.GetInt(config.KeyServerPort, 8080)

Updates are deep merges. Only leaves whose value actually changed are reported,
so re-applying a patch is silent:

	ev, err := store.Update(map[string]any{"server_port": 9090})
	// ev.ChangedKeys == []string{"server_port"}

# Change notification

Components implement Observer and register on the Bus. Notifications run on the
goroutine that made the change, after the store lock has been released, in
registration order. Observers receive only the changed keys and read fresh
values back from the Store. A panicking observer is logged and does not stop
delivery to the others.

An observer must not call Update on the same store from inside OnConfigUpdate
unless it can tolerate receiving the nested event before the outer delivery
finishes.

# Files and validation

Files are JSON, or YAML when the extension is .yaml or .yml. Save writes through
a temporary file and a rename. ValidateSnapshot checks a tree against an
embedded JSON schema; UpdateValidated and Watcher reloads refuse invalid trees
and keep the last good configuration.
*/
package config
