// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults and Load(ctx) to layer
//   an optional YAML file and environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"math"
	"runtime"
	"strings"
)

// Report store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// WorkerCount sets the number of batch workers for async uploads.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the async batch queue.
	QueueSize int `koanf:"queue_size"`

	// ScoreParallelism caps concurrent row chunks inside one batch.
	ScoreParallelism int `koanf:"score_parallelism"`

	// ScoreChunkSize is the number of rows handed to one goroutine.
	ScoreChunkSize int `koanf:"score_chunk_size"`

	// MaxUploadBytes rejects larger uploads before parsing.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MaxRows rejects tables with more data rows before scoring.
	MaxRows int `koanf:"max_rows"`

	// DefaultThreshold is used when a request does not supply one.
	DefaultThreshold float64 `koanf:"default_threshold"`

	// ModelPath points at a classifier artifact; empty uses the embedded model.
	ModelPath string `koanf:"model_path"`

	// DedupeSize bounds the identical-upload index for async batches.
	DedupeSize int `koanf:"dedupe_size"`

	// ReportStore selects the batch report backend: memory or sqlite.
	ReportStore string `koanf:"report_store"`

	// ReportDBPath is the SQLite file used when ReportStore is sqlite.
	ReportDBPath string `koanf:"report_db_path"`

	// ReportRetention caps how many batch reports are kept.
	ReportRetention int `koanf:"report_retention"`

	// SyncTimeoutMS bounds synchronous scoring requests.
	SyncTimeoutMS int `koanf:"sync_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		WorkerCount:      runtime.NumCPU(),
		QueueSize:        256,
		ScoreParallelism: runtime.NumCPU(),
		ScoreChunkSize:   1024,
		MaxUploadBytes:   10 << 20,
		MaxRows:          100_000,
		DefaultThreshold: 0.7,
		DedupeSize:       10_000,
		ReportStore:      StoreMemory,
		ReportDBPath:     "churnscore.db",
		ReportRetention:  1_000,
		SyncTimeoutMS:    30_000,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case math.IsNaN(c.DefaultThreshold) || c.DefaultThreshold <= 0 || c.DefaultThreshold > 1:
		return fmt.Errorf("%w: default_threshold must be in (0,1], got %v", ErrInvalidConfig, c.DefaultThreshold)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	case c.MaxRows <= 0:
		return fmt.Errorf("%w: max_rows must be positive", ErrInvalidConfig)
	case c.SyncTimeoutMS <= 0:
		return fmt.Errorf("%w: sync_timeout_ms must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.ReportStore) {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.ReportDBPath) == "" {
			return fmt.Errorf("%w: report_db_path is required for the sqlite store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown report_store %q", ErrInvalidConfig, c.ReportStore)
	}
	return nil
}
