// Command dedupcfg inspects and edits media-dedup runtime config files
// offline, using the same store, defaults and schema as the server.
//
// Usage:
//
//	dedupcfg <command> [arguments]
//
// Commands:
//
//	validate <file>              Check the file, merged over the defaults,
//	                             against the schema. Exits 1 when invalid.
//
//	get <file> <key>             Print the effective value of a dotted key.
//	                             Objects are printed as JSON.
//
//	set <file> <key> <value>     Change one key and write the file back.
//	                             value is parsed as JSON, else taken as a
//	                             string. Refused if the result is invalid,
//	                             unless --force is given.
//
//	diff <old> <new>             List keys whose effective value differs.
//
//	defaults [--yaml]            Print the built-in configuration.
//
// Files ending in .yaml or .yml are read and written as YAML, anything else
// as JSON. A running server with WATCH_CONFIG enabled picks up a file
// written by set within a moment.
//
// Output is colored when stdout is a terminal.
package main
