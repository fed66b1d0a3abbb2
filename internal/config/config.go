// Package config provides YAML-based configuration for the converter.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	Output     OutputConfig     `yaml:"output"`
	Parsing    ParsingConfig    `yaml:"parsing"`
	Processing ProcessingConfig `yaml:"processing"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// OutputConfig controls where and how containers are written
type OutputConfig struct {
	Format    string `yaml:"format"`
	Directory string `yaml:"directory"`
	// FileMode is an octal permission string such as "0644", applied to
	// every output container whatever the format.
	FileMode string `yaml:"file_mode"`
}

// Perm parses FileMode, falling back to 0644 when unset.
func (o OutputConfig) Perm() (os.FileMode, error) {
	if o.FileMode == "" {
		return 0o644, nil
	}
	v, err := strconv.ParseUint(o.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("output.file_mode: invalid octal value %q", o.FileMode)
	}
	return os.FileMode(v) & os.ModePerm, nil
}

// ParsingConfig tunes the spectrum parser
type ParsingConfig struct {
	// WavelengthPolicy is "last" (the last block's table wins) or "strict".
	WavelengthPolicy string `yaml:"wavelength_policy"`
}

// ProcessingConfig controls batch behaviour
type ProcessingConfig struct {
	FailFast bool `yaml:"fail_fast"`
	Catalog  bool `yaml:"catalog"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	BindAddress  string `yaml:"bind_address"`
	Port         int    `yaml:"port"`
	BodyLimit    string `yaml:"body_limit"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
}

// LoggingConfig selects log level and handler
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Output: OutputConfig{
			Format:    "msgpack",
			Directory: "./converted",
			FileMode:  "0644",
		},
		Parsing: ParsingConfig{
			WavelengthPolicy: "last",
		},
		Processing: ProcessingConfig{
			FailFast: false,
			Catalog:  true,
		},
		Server: ServerConfig{
			BindAddress:  "127.0.0.1",
			Port:         8089,
			BodyLimit:    "512M",
			ReadTimeout:  60,
			WriteTimeout: 60,
			IdleTimeout:  120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file. An empty path or a
// missing file yields the defaults; environment overrides apply either way.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			config.resolvePaths(filepath.Dir(configPath))
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# specconv configuration\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the converter cannot act on
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Parsing.WavelengthPolicy) {
	case "", "last", "strict":
	default:
		return fmt.Errorf("parsing.wavelength_policy: unsupported value %q", c.Parsing.WavelengthPolicy)
	}
	if _, err := c.Output.Perm(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: out of range: %d", c.Server.Port)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if format := os.Getenv("SPECCONV_FORMAT"); format != "" {
		c.Output.Format = format
	}

	if dir := os.Getenv("SPECCONV_OUTPUT_DIR"); dir != "" {
		c.Output.Directory = dir
	}

	if level := os.Getenv("SPECCONV_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Output.Directory != "" && !filepath.IsAbs(c.Output.Directory) {
		c.Output.Directory = filepath.Join(configDir, c.Output.Directory)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureOutputDirectory creates the output directory
func (c *AppConfig) EnsureOutputDirectory() error {
	if err := os.MkdirAll(c.Output.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Output.Directory, err)
	}
	return nil
}
