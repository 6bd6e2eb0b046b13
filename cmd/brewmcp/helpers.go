package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/germanamz/brewmcp/pkg/config"
)

const defaultConfigFile = "brewmcp.yaml"

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// resolveConfigPath returns the config file to load: the explicit flag value,
// else brewmcp.yaml when it exists, else "" for built-in defaults.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}

	return ""
}

// loadConfig resolves and loads the configuration named by the --config flag.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")

	path := resolveConfigPath(explicit)
	if path == "" {
		return config.Default(), nil
	}

	return config.Load(path)
}

// newLogger returns a text logger for diagnostics. It must never write to
// stdout, which carries the MCP stream when serving.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
