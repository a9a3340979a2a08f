// Package main is the entry point for the entrystore CLI.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/axonops/entrystore"
	"github.com/axonops/entrystore/internal/config"
	"github.com/axonops/entrystore/schema"

	// Register the backends with the factory.
	_ "github.com/axonops/entrystore/csv"
	_ "github.com/axonops/entrystore/sqlite"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "entrystore",
		Short: "Inspect and feed an entry store",
		Long:  `A command-line tool for reading and writing indexed entry stores over the CSV and SQLite backends.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	rootCmd.AddCommand(
		simpleCmd("fields", "Print the schema's field names", func(ctx context.Context, store entrystore.Store) (any, error) {
			return store.Fields(ctx)
		}),
		simpleCmd("first", "Print the first entry", func(ctx context.Context, store entrystore.Store) (any, error) {
			entry, err := store.First(ctx)
			return renderEntry(entry), err
		}),
		simpleCmd("last", "Print the last entry", func(ctx context.Context, store entrystore.Store) (any, error) {
			entry, err := store.Last(ctx)
			return renderEntry(entry), err
		}),
		simpleCmd("first-key", "Print the first index value", func(ctx context.Context, store entrystore.Store) (any, error) {
			key, err := store.FirstKey(ctx)
			return renderValue(key), err
		}),
		simpleCmd("last-key", "Print the last index value", func(ctx context.Context, store entrystore.Store) (any, error) {
			key, err := store.LastKey(ctx)
			return renderValue(key), err
		}),
		getCmd(),
		putCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration, wires logging and builds the store
// through the backend factory.
func setup() (*config.Config, entrystore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	var sink io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		sink = &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
		}
	}
	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	factoryCfg := map[string]interface{}{}
	if cfg.Schema != nil {
		t, err := cfg.Schema.Template()
		if err != nil {
			return nil, nil, err
		}
		factoryCfg["template"] = t
	}
	switch cfg.Store.Type {
	case "csv":
		factoryCfg["root"] = cfg.Store.CSV.Root
		factoryCfg["partition"] = map[string]interface{}{
			"type": cfg.Store.CSV.Partition.Type,
			"name": cfg.Store.CSV.Partition.Name,
			"size": cfg.Store.CSV.Partition.Size,
		}
	case "sqlite":
		factoryCfg["path"] = cfg.Store.SQLite.Path
	}
	store, err := entrystore.Create(entrystore.BackendType(cfg.Store.Type), factoryCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func simpleCmd(use, short string, run func(context.Context, entrystore.Store) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := setup()
			if err != nil {
				return err
			}
			out, err := run(cmd.Context(), store)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the entry stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := setup()
			if err != nil {
				return err
			}
			key, err := parseKey(cfg, args[0])
			if err != nil {
				return err
			}
			entry, err := store.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(renderEntry(entry))
		},
	}
}

func putCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Submit entries, one JSON object per line, from stdin or a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := setup()
			if err != nil {
				return err
			}
			in := os.Stdin
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			entries, err := readEntries(cfg, in)
			if err != nil {
				return err
			}
			if err := store.Put(cmd.Context(), entries...); err != nil {
				return err
			}
			fmt.Printf("stored %d entries\n", len(entries))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read entries from a file instead of stdin")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("entrystore %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}

// readEntries decodes one JSON object per non-empty line, coercing
// values to the template's kinds when a template is declared.
func readEntries(cfg *config.Config, in io.Reader) ([]entrystore.Entry, error) {
	var entries []entrystore.Entry
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entry, err := coerceEntry(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// coerceEntry converts JSON-decoded values to the kinds the template
// declares. Dates accept RFC 3339 strings or epoch seconds; URLs accept
// strings. Without a template, values pass through as decoded.
func coerceEntry(cfg *config.Config, raw map[string]any) (entrystore.Entry, error) {
	entry := make(entrystore.Entry, len(raw))
	kinds := map[string]schema.TemplateField{}
	if cfg.Schema != nil {
		t, err := cfg.Schema.Template()
		if err != nil {
			return nil, err
		}
		for _, f := range t.Fields {
			kinds[f.Name] = f
		}
	}
	for name, v := range raw {
		f, ok := kinds[name]
		if !ok || v == nil {
			entry[name] = v
			continue
		}
		if f.List {
			elems, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("field %q: expected a list", name)
			}
			out := make([]any, len(elems))
			for i, e := range elems {
				c, err := coerceScalar(f.Kind, e)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", name, err)
				}
				out[i] = c
			}
			entry[name] = out
			continue
		}
		c, err := coerceScalar(f.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		entry[name] = c
	}
	return entry, nil
}

func coerceScalar(kind schema.Kind, v any) (any, error) {
	switch kind {
	case schema.Date:
		switch x := v.(type) {
		case string:
			t, err := time.Parse(time.RFC3339, x)
			if err != nil {
				return nil, err
			}
			return t, nil
		case float64:
			return time.UnixMilli(int64(x * 1000)).UTC(), nil
		}
	case schema.URL:
		if s, ok := v.(string); ok {
			return url.Parse(s)
		}
	}
	return v, nil
}

// parseKey converts the CLI key argument into the index kind declared by
// the template, or guesses (RFC 3339 date, number, string) without one.
func parseKey(cfg *config.Config, raw string) (any, error) {
	if cfg.Schema != nil {
		t, err := cfg.Schema.Template()
		if err != nil {
			return nil, err
		}
		for _, f := range t.Fields {
			if f.Name != t.Index {
				continue
			}
			switch f.Kind {
			case schema.Date:
				return time.Parse(time.RFC3339, raw)
			case schema.Number:
				return strconv.ParseFloat(raw, 64)
			case schema.URL:
				return url.Parse(raw)
			default:
				return raw, nil
			}
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	return raw, nil
}

// renderEntry converts an entry to a JSON-friendly mapping.
func renderEntry(entry entrystore.Entry) any {
	if entry == nil {
		return nil
	}
	out := make(map[string]any, len(entry))
	for name, v := range entry {
		out[name] = renderValue(v)
	}
	return out
}

func renderValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *url.URL:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = renderValue(e)
		}
		return out
	}
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
