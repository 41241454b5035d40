package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"media-dedup/internal/config"
	"media-dedup/internal/logging"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errInvalid reports a config that failed validation. The details have
// already been printed.
var errInvalid = errors.New("configuration is invalid")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "dedupcfg",
		Short: "Inspect and edit media-dedup config files",
		Long: `dedupcfg works on media-dedup runtime config files without a running
server. Files are read over the built-in defaults, exactly as the server
loads them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// Store diagnostics go to stderr; keep them out of the way unless asked.
			if verbose {
				logging.SetLevel(logging.LevelDebug)
			} else {
				logging.SetLevel(logging.LevelError)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log configuration store activity")

	root.AddCommand(
		newValidateCommand(),
		newGetCommand(),
		newSetCommand(),
		newDiffCommand(),
		newDefaultsCommand(),
	)
	return root
}

// loadStore reads path over the defaults without validating it.
func loadStore(path string) (*config.Store, error) {
	store := config.NewStore(nil, config.WithDefaults(config.Defaults()))
	if _, err := store.LoadFile(path); err != nil {
		return nil, err
	}
	return store, nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a config file against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(args[0])
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			errs := store.Validate()
			if len(errs) == 0 {
				p.ok("%s is valid", args[0])
				return nil
			}
			for _, e := range errs {
				p.bad("%v", e)
			}
			return errInvalid
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file> <key>",
		Short: "Print the effective value of a dotted key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(args[0])
			if err != nil {
				return err
			}
			v, ok := store.Get(args[1])
			if !ok {
				return fmt.Errorf("key %q is not set", args[1])
			}
			if v.IsObject() {
				data, err := json.MarshalIndent(v.ToAny(), "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v.String())
			return err
		},
	}
}

func newSetCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "set <file> <key> <value>",
		Short: "Change one key and write the file back",
		Long: `set parses value as JSON (so 8, true and {"a": 1} keep their types) and
falls back to a plain string. The result must pass validation unless
--force is given. The whole effective configuration is written, in the
file's own format.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, key := args[0], args[1]
			store, err := loadStore(path)
			if err != nil {
				return err
			}

			patch := map[string]any{key: parseValue(args[2])}
			var event config.UpdateEvent
			if force {
				event, err = store.Update(patch)
			} else {
				event, err = store.UpdateValidated(patch)
			}
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			if len(event.ChangedKeys) == 0 {
				p.ok("%s unchanged", key)
				return nil
			}
			if err := store.SaveFile(path); err != nil {
				return err
			}
			for _, k := range event.ChangedKeys {
				v, _ := store.Get(k)
				p.ok("%s = %s", k, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "write the change even if it fails validation")
	return cmd
}

// parseValue decodes s as JSON, keeping integers exact, or returns it as a
// string.
func parseValue(s string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return v
}

func newDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "List the keys whose effective value differs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := loadStore(args[0])
			if err != nil {
				return err
			}
			after, err := loadStore(args[1])
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			changed := config.Diff(before.Snapshot(), after.Snapshot())
			if len(changed) == 0 {
				p.ok("no differences")
				return nil
			}
			for _, key := range changed {
				p.change(key, lookup(before, key), lookup(after, key))
			}
			return nil
		},
	}
}

func lookup(store *config.Store, key string) string {
	v, ok := store.Get(key)
	if !ok {
		return "(unset)"
	}
	return v.String()
}

func newDefaultsCommand() *cobra.Command {
	var yamlOut bool

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := config.NewSnapshot(config.Defaults())
			if err != nil {
				return err
			}
			format := config.FormatJSON
			if yamlOut {
				format = config.FormatYAML
			}
			data, err := config.Encode(snapshot, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&yamlOut, "yaml", false, "print YAML instead of JSON")
	return cmd
}

// printer colors its output when writing to a terminal.
type printer struct {
	w     io.Writer
	color bool
}

const (
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiReset = "\033[0m"
)

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok {
		p.color = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *printer) paint(color, s string) string {
	if !p.color {
		return s
	}
	return color + s + ansiReset
}

func (p *printer) ok(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint(ansiGreen, "ok")+"  "+fmt.Sprintf(format, args...))
}

func (p *printer) bad(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint(ansiRed, "bad")+" "+fmt.Sprintf(format, args...))
}

func (p *printer) change(key, from, to string) {
	fmt.Fprintf(p.w, "%s\n  %s\n  %s\n", key, p.paint(ansiRed, "- "+from), p.paint(ansiGreen, "+ "+to))
}
