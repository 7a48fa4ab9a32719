// Package config provides configuration loading for the udf-kit command line tools.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the UDFKIT_CONFIG environment variable
//
// Without either the built-in defaults are used. Command line flags override
// values from the file.
package config

import (
	"fmt"
	"os"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "UDFKIT_CONFIG"

// Config is the configuration of the command line tools.
type Config struct {
	// Extract configures extraction.
	Extract ExtractConfig `yaml:"extract"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// ExtractConfig configures extraction.
type ExtractConfig struct {
	// OutputDir is the directory files are extracted into.
	// Default: ./extracted
	OutputDir string `yaml:"output_dir"`

	// ChunkSize is the number of bytes copied per read.
	// Default: 8 MiB
	ChunkSize int `yaml:"chunk_size"`

	// Digests enables BLAKE3 digests of every extracted file.
	Digests bool `yaml:"digests"`

	// PreserveTimes applies recorded file times to extracted files.
	PreserveTimes bool `yaml:"preserve_times"`

	// Manifest is where the extraction report is written. Empty disables it.
	Manifest string `yaml:"manifest"`

	// RequireBlank refuses to extract into a non empty directory.
	RequireBlank bool `yaml:"require_blank"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is one of info, debug or trace.
	// Default: info
	Level string `yaml:"level"`

	// Color enables colored level labels.
	// Default: true
	Color bool `yaml:"color"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Extract: ExtractConfig{
			OutputDir: "./extracted",
			ChunkSize: consts.UDF_EXTRACT_CHUNK_SIZE,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load loads configuration from the file named by UDFKIT_CONFIG, or returns the defaults when it is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// expandVariables expands ${HOME} and similar variables in paths.
func (c *Config) expandVariables() {
	c.Extract.OutputDir = os.ExpandEnv(c.Extract.OutputDir)
	c.Extract.Manifest = os.ExpandEnv(c.Extract.Manifest)
}

// Validate checks the configuration for values the tools cannot use.
func (c *Config) Validate() error {
	if c.Extract.OutputDir == "" {
		return fmt.Errorf("extract.output_dir must be set")
	}
	if c.Extract.ChunkSize < consts.UDF_SECTOR_SIZE {
		return fmt.Errorf("extract.chunk_size %d is smaller than a sector (%d)", c.Extract.ChunkSize, consts.UDF_SECTOR_SIZE)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Verbosity returns the logging level of the configuration.
func (c *Config) Verbosity() int {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.LEVEL_INFO
	}
	return level
}
