// Package config holds run settings. Values come from defaults, then an
// optional HCL or JSON file, then explicitly set command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/spherepack/internal/packing"
	"github.com/agentic-research/spherepack/internal/schedule"
)

// ErrInvalid marks a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of run options.
//
//	input         = "molecules/"
//	output        = "count_sphere.csv"
//	workers       = 8
//	task_timeout  = "30s"
type Config struct {
	Input        string  `hcl:"input,optional" json:"input"`
	Output       string  `hcl:"output,optional" json:"output"`
	Workers      int     `hcl:"workers,optional" json:"workers"`
	BatchSize    int     `hcl:"batch_size,optional" json:"batch_size"`
	SphereRadius float64 `hcl:"sphere_radius,optional" json:"sphere_radius"`
	EmbedSeed    int64   `hcl:"embed_seed,optional" json:"embed_seed"`
	MaxIters     int     `hcl:"max_iters,optional" json:"max_iters"`
	// ShuffleSeed fixes batch selection; 0 seeds from the clock.
	ShuffleSeed int64  `hcl:"shuffle_seed,optional" json:"shuffle_seed"`
	TaskTimeout string `hcl:"task_timeout,optional" json:"task_timeout"`
	BatchDelay  string `hcl:"batch_delay,optional" json:"batch_delay"`
	Rejects     string `hcl:"rejects,optional" json:"rejects"`
	LogLevel    string `hcl:"log_level,optional" json:"log_level"`
	LogFormat   string `hcl:"log_format,optional" json:"log_format"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		Workers:      4,
		BatchSize:    schedule.DefaultBatchSize,
		SphereRadius: packing.DefaultRadius,
		EmbedSeed:    packing.DefaultSeed,
		MaxIters:     packing.DefaultMaxIters,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads path over the defaults. An empty path returns Default().
// The file format follows the extension (.hcl or .json).
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("%w: config file: %w", ErrInvalid, err)
	}
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return cfg, nil
}

// Timeout returns the per-molecule deadline; zero means none.
func (c Config) Timeout() time.Duration {
	d, _ := parseDuration(c.TaskTimeout)
	return d
}

// Delay returns the pause before each batch.
func (c Config) Delay() time.Duration {
	d, _ := parseDuration(c.BatchDelay)
	return d
}

// WorkerOptions returns the per-molecule engine settings.
func (c Config) WorkerOptions() packing.Options {
	return packing.Options{Seed: c.EmbedSeed, MaxIters: c.MaxIters, Timeout: c.Timeout()}
}

// Validate checks every value needed by a counting run.
func (c Config) Validate() error {
	var errs []error
	if c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize))
	}
	if !(c.SphereRadius > 0) {
		errs = append(errs, fmt.Errorf("sphere_radius must be positive, got %g", c.SphereRadius))
	}
	if c.MaxIters < 0 {
		errs = append(errs, fmt.Errorf("max_iters must not be negative, got %d", c.MaxIters))
	}
	if _, err := parseDuration(c.TaskTimeout); err != nil {
		errs = append(errs, fmt.Errorf("task_timeout: %w", err))
	}
	if _, err := parseDuration(c.BatchDelay); err != nil {
		errs = append(errs, fmt.Errorf("batch_delay: %w", err))
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
