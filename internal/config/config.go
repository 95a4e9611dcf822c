// Package config defines extractor configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config holding defaults.
//   - Load layers defaults, an optional YAML file and environment variables.
//   - Validate is called once at the boundary; downstream code receives plain
//     values such as scan.Params.
package config

import (
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/okian/frameevents/internal/domain/scan"
)

// Sink kinds.
const (
	SinkFS    = "fs"
	SinkMinIO = "minio"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// InputDir holds the numbered single-frame files.
	InputDir string `koanf:"input_dir"`

	// OutputDir receives event stacks. Empty means "<InputDir>/events".
	OutputDir string `koanf:"output_dir"`

	// Extensions filters input files by suffix (case-insensitive, no dot).
	// Empty accepts every regular file.
	Extensions []string `koanf:"extensions"`

	// Threshold, Before and After drive the event scanner.
	Threshold float64 `koanf:"threshold"`
	Before    int     `koanf:"before"`
	After     int     `koanf:"after"`

	// WriterCount sets the number of event writer workers.
	WriterCount int `koanf:"writer_count"`

	// QueueSize bounds the number of windows waiting to be written.
	QueueSize int `koanf:"queue_size"`

	// RequireEmptyOutput refuses to write into an output that already holds files.
	RequireEmptyOutput bool `koanf:"require_empty_output"`

	// ProgressInterval logs scan progress every N frames; 0 disables it.
	ProgressInterval int `koanf:"progress_interval"`

	// MetricsAddr serves /healthz and /stats while running, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// MetricsNamespace prefixes every exported metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsLabels are constant labels attached to every metric, e.g. a
	// rig or site name.
	MetricsLabels map[string]string `koanf:"metrics_labels"`

	// MetricsLatencyBuckets overrides the millisecond buckets of the latency
	// histograms. Empty keeps the built-in buckets.
	MetricsLatencyBuckets []float64 `koanf:"metrics_latency_buckets"`

	// Manifest writes events.json next to the event stacks.
	Manifest bool `koanf:"manifest"`

	// Sink selects where event stacks go: fs or minio.
	Sink string `koanf:"sink"`

	// MinIO configures the object store sink.
	MinIO MinIO `koanf:"minio"`
}

// MinIO holds object store settings.
type MinIO struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
}

// New creates a Config holding defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		InputDir:           ".",
		Extensions:         []string{"tif", "tiff", "png"},
		Threshold:          40,
		Before:             5,
		After:              5,
		WriterCount:        runtime.NumCPU(),
		QueueSize:          64,
		RequireEmptyOutput: true,
		ProgressInterval:   500,
		MetricsNamespace:   "frameevents",
		Manifest:           true,
		Sink:               SinkFS,
	}
}

// EventsDir returns the filesystem output directory.
func (c *Config) EventsDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.InputDir, "events")
}

// ScanParams returns the scanner settings.
func (c *Config) ScanParams() scan.Params {
	return scan.Params{Threshold: c.Threshold, Before: c.Before, After: c.After}
}

// Validate checks c, reporting every problem at once.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.InputDir) == "" {
		problems = append(problems, "input_dir must not be empty")
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		problems = append(problems, "threshold must be a finite number")
	}
	if c.Before < 0 {
		problems = append(problems, "before must be >= 0")
	}
	if c.After < 0 {
		problems = append(problems, "after must be >= 0")
	}
	if c.WriterCount < 1 {
		problems = append(problems, "writer_count must be >= 1")
	}
	if c.QueueSize < 1 {
		problems = append(problems, "queue_size must be >= 1")
	}
	if c.ProgressInterval < 0 {
		problems = append(problems, "progress_interval must be >= 0")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		problems = append(problems, "log_format must be text or json")
	}
	switch c.Sink {
	case SinkFS:
	case SinkMinIO:
		if c.MinIO.Endpoint == "" {
			problems = append(problems, "minio.endpoint must not be empty")
		}
		if c.MinIO.Bucket == "" {
			problems = append(problems, "minio.bucket must not be empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("sink must be %q or %q, got %q", SinkFS, SinkMinIO, c.Sink))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
