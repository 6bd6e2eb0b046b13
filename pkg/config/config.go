// Package config loads the brewmcp YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Brew    BrewConfig    `yaml:"brew"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig describes how the server identifies itself to MCP clients.
type ServerConfig struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	Instructions string `yaml:"instructions"`
}

// BrewConfig controls how the package-manager binary is invoked.
type BrewConfig struct {
	Binary  string            `yaml:"binary"`
	Timeout string            `yaml:"timeout"` // Duration string (e.g. "60s"); "0" disables.
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
}

// LogConfig holds transaction-log and diagnostics settings.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"` // debug, info, warn or error.
}

// TracingConfig holds span export settings.
type TracingConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:         "homebrew-mcp",
			Version:      "0.1.0",
			Instructions: "Tools for managing Homebrew packages. Each tool runs the matching brew subcommand and returns its output.",
		},
		Brew: BrewConfig{
			Binary:  "brew",
			Timeout: "0",
		},
		Log: LogConfig{
			File:  "homebrew_mcp.log",
			Level: "warn",
		},
	}
}

// Load reads a YAML file on top of Default.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML data on top of Default after environment expansion.
func Parse(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("config: server.name is required")
	}
	if strings.TrimSpace(c.Brew.Binary) == "" {
		return fmt.Errorf("config: brew.binary is required")
	}
	if _, err := c.Brew.TimeoutDuration(); err != nil {
		return err
	}
	if c.Log.File == "" {
		return fmt.Errorf("config: log.file is required")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// TimeoutDuration parses Timeout. An empty value or "0" means no timeout.
func (b BrewConfig) TimeoutDuration() (time.Duration, error) {
	if b.Timeout == "" || b.Timeout == "0" {
		return 0, nil
	}

	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: brew.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: brew.timeout must not be negative")
	}

	return d, nil
}

// EnvList returns Env as sorted KEY=VALUE entries.
func (b BrewConfig) EnvList() []string {
	if len(b.Env) == 0 {
		return nil
	}

	out := make([]string, 0, len(b.Env))
	for k, v := range b.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)

	return out
}

// SlogLevel maps Level onto a slog.Level. Empty means warn.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: log.level: unknown level %q", l.Level)
	}
}
