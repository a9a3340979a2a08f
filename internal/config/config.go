// Package config provides configuration management for the entrystore
// CLI.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/axonops/entrystore/schema"
)

// Config represents the CLI configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Schema  *SchemaConfig `yaml:"schema"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig selects a backend and its resources.
type StoreConfig struct {
	Type   string       `yaml:"type"` // csv, sqlite
	CSV    CSVConfig    `yaml:"csv"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// CSVConfig configures the CSV backend.
type CSVConfig struct {
	Root      string          `yaml:"root"`
	Partition PartitionConfig `yaml:"partition"`
}

// PartitionConfig selects a partitioner.
type PartitionConfig struct {
	Type string  `yaml:"type"` // single, fixedsize, yearmonth
	Name string  `yaml:"name"` // single
	Size float64 `yaml:"size"` // fixedsize
}

// SQLiteConfig configures the relational backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SchemaConfig declares an optional entry template.
type SchemaConfig struct {
	Index  string        `yaml:"index"`
	Fields []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one template field.
type FieldConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	List     bool   `yaml:"list"`
	Nullable bool   `yaml:"nullable"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`  // empty for stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Type: "csv",
			CSV: CSVConfig{
				Root:      "./data",
				Partition: PartitionConfig{Type: "yearmonth"},
			},
			SQLite: SQLiteConfig{
				Path: "./entrystore.db",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the configuration file, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from ENTRYSTORE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("ENTRYSTORE_STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("ENTRYSTORE_CSV_ROOT"); v != "" {
		c.Store.CSV.Root = v
	}
	if v := os.Getenv("ENTRYSTORE_SQLITE_PATH"); v != "" {
		c.Store.SQLite.Path = v
	}
	if v := os.Getenv("ENTRYSTORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ENTRYSTORE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "csv":
		if c.Store.CSV.Root == "" {
			return fmt.Errorf("store.csv.root is required")
		}
		switch c.Store.CSV.Partition.Type {
		case "yearmonth":
		case "single":
			if c.Store.CSV.Partition.Name == "" {
				return fmt.Errorf("store.csv.partition.name is required for single partitioning")
			}
		case "fixedsize":
			if c.Store.CSV.Partition.Size <= 0 {
				return fmt.Errorf("store.csv.partition.size must be positive")
			}
		default:
			return fmt.Errorf("unknown partition type: %q", c.Store.CSV.Partition.Type)
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	default:
		return fmt.Errorf("unknown store type: %q", c.Store.Type)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.Logging.Level)
	}
	if c.Schema != nil {
		if _, err := c.Schema.Template(); err != nil {
			return err
		}
	}
	return nil
}

// Template converts the declared schema section into a template.
func (sc *SchemaConfig) Template() (*schema.Template, error) {
	t := &schema.Template{Index: sc.Index}
	for _, f := range sc.Fields {
		t.Fields = append(t.Fields, schema.TemplateField{
			Name:     f.Name,
			Kind:     schema.Kind(f.Kind),
			List:     f.List,
			Nullable: f.Nullable,
		})
	}
	if _, err := t.Schema(); err != nil {
		return nil, fmt.Errorf("schema config: %w", err)
	}
	return t, nil
}
