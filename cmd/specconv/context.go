package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/kilonova-lab/specconv/internal/config"
	"github.com/kilonova-lab/specconv/internal/logging"
	"github.com/kilonova-lab/specconv/internal/parser"
)

type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.AppConfig
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.AppConfig, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadConfig(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.logLevel != "" {
			cfg.Logging.Level = c.flags.logLevel
		}
		if c.flags.logFormat != "" {
			cfg.Logging.Format = c.flags.logFormat
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	})
	return c.logger, c.loggerErr
}

// wavelengthPolicy returns the configured policy, forced to strict when
// requested on the command line.
func (c *commandContext) wavelengthPolicy(strict bool) (parser.WavelengthPolicy, error) {
	if strict {
		return parser.PolicyStrict, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return parser.ParseWavelengthPolicy(strings.ToLower(cfg.Parsing.WavelengthPolicy))
}
