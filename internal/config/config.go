// Package config loads the texgraph engine configuration from YAML and turns
// it into engine options and a logger.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/roach88/texgraph/internal/engine"
	"github.com/roach88/texgraph/internal/store"
	"github.com/roach88/texgraph/internal/store/postgres"
)

// Config is the engine configuration file.
type Config struct {
	// Workers is the worker pool size. Zero runs nothing in the background;
	// callers drive the graph with RunPending.
	Workers int `yaml:"workers"`

	// AutoUpdate re-materializes the watch set after every mutation.
	AutoUpdate bool `yaml:"auto_update"`

	// UseCache consults the persistent buffer store before computing.
	UseCache bool `yaml:"use_cache"`

	// CachePath is the SQLite file backing the persistent store.
	CachePath string `yaml:"cache_path,omitempty"`

	// CacheURL is a PostgreSQL connection string for a cache shared between
	// processes. Mutually exclusive with CachePath.
	CacheURL string `yaml:"cache_url,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workers:    runtime.NumCPU(),
		AutoUpdate: true,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load reads a YAML configuration file. Fields absent from the file keep
// their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if !oneOf(c.LogLevel, validLevels) {
		return fmt.Errorf("log_level %q: must be one of %v", c.LogLevel, validLevels)
	}
	if !oneOf(c.LogFormat, validFormats) {
		return fmt.Errorf("log_format %q: must be one of %v", c.LogFormat, validFormats)
	}
	if c.CachePath != "" && c.CacheURL != "" {
		return errors.New("cache_path and cache_url are mutually exclusive")
	}
	if c.UseCache && c.CachePath == "" && c.CacheURL == "" {
		return errors.New("use_cache requires cache_path or cache_url")
	}
	return nil
}

// Logger builds a logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return NewLogger(c.LogLevel, c.LogFormat, w)
}

// NewLogger creates a logger for the given level and format. Unknown levels
// fall back to info and unknown formats to text.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// OpenStore opens the persistent buffer store named by CachePath or
// CacheURL. It returns nil when neither is configured. The store is opened
// even if UseCache is off, so the cache can be switched on at runtime.
func (c Config) OpenStore(ctx context.Context) (store.Backend, error) {
	switch {
	case c.CacheURL != "":
		st, err := postgres.Open(ctx, c.CacheURL)
		if err != nil {
			return nil, fmt.Errorf("open shared cache: %w", err)
		}
		return st, nil
	case c.CachePath != "":
		st, err := store.Open(c.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", c.CachePath, err)
		}
		return st, nil
	}
	return nil, nil
}

// HasCache reports whether a persistent store is configured.
func (c Config) HasCache() bool {
	return c.CachePath != "" || c.CacheURL != ""
}

// Options converts the configuration into engine options. logger and st
// may be nil.
func (c Config) Options(logger *slog.Logger, st store.Backend) []engine.Option {
	opts := []engine.Option{
		engine.WithWorkers(c.Workers),
		engine.WithAutoUpdate(c.AutoUpdate),
		engine.WithUseCache(c.UseCache),
	}
	if logger != nil {
		opts = append(opts, engine.WithLogger(logger))
	}
	if st != nil {
		opts = append(opts, engine.WithStore(st))
	}
	return opts
}

func oneOf(s string, options []string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
