package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/germanamz/brewmcp/pkg/brew"
	"github.com/germanamz/brewmcp/pkg/config"
	"github.com/germanamz/brewmcp/pkg/dispatch"
	"github.com/germanamz/brewmcp/pkg/telemetry"
	"github.com/germanamz/brewmcp/pkg/tools/mcpserver"
	"github.com/germanamz/brewmcp/pkg/txlog"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the "serve" subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Homebrew tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	addServeFlags(cmd)

	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-file", "", "transaction log file (overrides log.file)")
	cmd.Flags().String("brew", "", "package-manager executable (overrides brew.binary)")
	cmd.Flags().String("timeout", "", `per-command timeout such as "60s", "0" disables (overrides brew.timeout)`)
}

// applyServeFlags overlays explicitly set serve flags onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("log-file") {
		cfg.Log.File, _ = cmd.Flags().GetString("log-file")
	}
	if cmd.Flags().Changed("brew") {
		cfg.Brew.Binary, _ = cmd.Flags().GetString("brew")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Brew.Timeout, _ = cmd.Flags().GetString("timeout")
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	applyServeFlags(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Log.SlogLevel()
	logger := newLogger(cmd.ErrOrStderr(), level)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Server.Name,
		ServiceVersion: cfg.Server.Version,
		File:           cfg.Tracing.File,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	srv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("serving MCP over stdio", "name", cfg.Server.Name, "version", cfg.Server.Version, "brew", cfg.Brew.Binary, "log", cfg.Log.File)

	err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

// buildServer wires the runner, transaction log and dispatcher into an MCP
// server exposing the full catalogue. cfg must already be validated.
func buildServer(cfg config.Config, logger *slog.Logger) (*mcpserver.MCPServer, error) {
	timeout, err := cfg.Brew.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	runner := &brew.Runner{
		Binary:  cfg.Brew.Binary,
		Timeout: timeout,
		Env:     cfg.Brew.EnvList(),
		Dir:     cfg.Brew.Dir,
	}

	log, err := txlog.Open(cfg.Log.File)
	if err != nil {
		return nil, err
	}

	d, err := dispatch.New(runner, log, dispatch.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	srv := mcpserver.New(cfg.Server.Name, cfg.Server.Version, mcpserver.WithInstructions(cfg.Server.Instructions))
	srv.Register(d.Tools().Tools()...)
	srv.HandleUnknownTools(func(ctx context.Context, name string, args json.RawMessage) error {
		_, err := d.Dispatch(ctx, name, args)
		return err
	})

	return srv, nil
}
