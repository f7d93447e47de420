package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/npyz/internal/logger"
)

// Config represents the npyz configuration file (~/.config/npyz/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Codec
	MaxHeaderSize *int   `yaml:"max_header_size"`
	ExcessBytes   string `yaml:"excess_bytes"`
	ByteOrder     string `yaml:"byte_order"`
	MinVersion    *int   `yaml:"min_version"`

	// Archives
	Compress         *bool `yaml:"compress"`
	CompressionLevel *int  `yaml:"compression_level"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// cfg is loaded once by setup before any command runs.
var cfg Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "npyz", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// setup loads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	c, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	cfg = c
	applyLogConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Setup(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyReadConfig applies config file defaults to the decode flags when the
// corresponding flag was not set explicitly.
func applyReadConfig(c *cli.Command, cfg Config) {
	if cfg.MaxHeaderSize != nil && !c.IsSet("max-header-size") {
		maxHeaderSize = *cfg.MaxHeaderSize
	}
	if cfg.ExcessBytes != "" && !c.IsSet("excess-bytes") {
		excessBytes = cfg.ExcessBytes
	}
}

// applyWriteConfig applies config file defaults to the encode flags.
func applyWriteConfig(c *cli.Command, cfg Config) {
	if cfg.ByteOrder != "" && !c.IsSet("byte-order") {
		byteOrder = cfg.ByteOrder
	}
	if cfg.MinVersion != nil && !c.IsSet("min-version") {
		minVersion = *cfg.MinVersion
	}
}

// applyArchiveConfig applies config file defaults to the archive flags.
func applyArchiveConfig(c *cli.Command, cfg Config, compress *bool, level *int) {
	if cfg.Compress != nil && !c.IsSet("compress") {
		*compress = *cfg.Compress
	}
	if cfg.CompressionLevel != nil && !c.IsSet("level") {
		*level = *cfg.CompressionLevel
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
