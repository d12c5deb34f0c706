// Package config loads the YAML configuration shared by the deltasync tools.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/plus3/deltasync/capture"
	"github.com/plus3/deltasync/logging"
	"github.com/plus3/deltasync/schema"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "DELTASYNC_CONFIG"

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Schema  SchemaConfig  `yaml:"schema"`
	Capture CaptureConfig `yaml:"capture"`
	Stress  StressConfig  `yaml:"stress"`
}

type LogConfig struct {
	// Level is one of trace, debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type SchemaConfig struct {
	// File is a YAML schema document. Empty selects the built-in schema.
	File string `yaml:"file"`
}

type CaptureConfig struct {
	// Path is where snapshots are recorded. Empty disables recording.
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// StressConfig shapes the synthetic traffic of replication-stress.
type StressConfig struct {
	Entities int `yaml:"entities"`
	Frames   int `yaml:"frames"`
	// Peers is the number of goroutines producing snapshots concurrently.
	Peers int   `yaml:"peers"`
	Seed  int64 `yaml:"seed"`
	// UpdateRatio is the fraction of live entities updated per frame.
	UpdateRatio float64 `yaml:"update_ratio"`
	// OwnershipRatio is the chance per frame that an entity changes owner.
	OwnershipRatio float64 `yaml:"ownership_ratio"`
	// DeleteRatio is the chance per frame that an entity is deleted and replaced.
	DeleteRatio float64 `yaml:"delete_ratio"`
	// ReleaseRatio is the chance per frame that a locally owned entity is
	// destroyed on this side before its peer deletes it.
	ReleaseRatio float64 `yaml:"release_ratio"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Capture: CaptureConfig{
			Compression: "lz4",
		},
		Stress: StressConfig{
			Entities:       1000,
			Frames:         600,
			Peers:          4,
			Seed:           1,
			UpdateRatio:    0.25,
			OwnershipRatio: 0.01,
			DeleteRatio:    0.005,
			ReleaseRatio:   0.002,
		},
	}
}

// Load reads the file named by DELTASYNC_CONFIG, or returns the defaults
// when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates a configuration file. Keys the file omits
// keep their default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if _, err := capture.ParseCompression(c.Capture.Compression); err != nil {
		errs = append(errs, fmt.Errorf("capture.compression: %w", err))
	}

	s := c.Stress
	if s.Entities <= 0 {
		errs = append(errs, fmt.Errorf("stress.entities: must be positive, got %d", s.Entities))
	}
	if s.Frames <= 0 {
		errs = append(errs, fmt.Errorf("stress.frames: must be positive, got %d", s.Frames))
	}
	if s.Peers <= 0 {
		errs = append(errs, fmt.Errorf("stress.peers: must be positive, got %d", s.Peers))
	}
	ratios := []struct {
		name  string
		value float64
	}{
		{"update_ratio", s.UpdateRatio},
		{"ownership_ratio", s.OwnershipRatio},
		{"delete_ratio", s.DeleteRatio},
		{"release_ratio", s.ReleaseRatio},
	}
	for _, ratio := range ratios {
		if ratio.value < 0 || ratio.value > 1 {
			errs = append(errs, fmt.Errorf("stress.%s: must be within [0, 1], got %v", ratio.name, ratio.value))
		}
	}

	return errors.Join(errs...)
}

// LoadSchema returns the configured component schema.
func (c *Config) LoadSchema() (*schema.Schema, error) {
	if c.Schema.File == "" {
		return schema.Builtin(), nil
	}
	f, err := os.Open(c.Schema.File)
	if err != nil {
		return nil, fmt.Errorf("opening schema: %w", err)
	}
	defer f.Close()
	return schema.Load(f)
}

// CaptureCompression returns the parsed capture codec.
func (c *Config) CaptureCompression() capture.Compression {
	compression, _ := capture.ParseCompression(c.Capture.Compression)
	return compression
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	return logging.New(w, c.Log.Level, c.Log.Format)
}
