package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/germanamz/brewmcp/pkg/catalog"
	"github.com/germanamz/brewmcp/pkg/tools/mcpclient"
)

// newCallCmd creates the "call" subcommand.
func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool> [package]",
		Short: "Call one tool through a spawned MCP server",
		Long: "call starts \"brewmcp serve\" as an MCP subprocess, checks that the tool is advertised, " +
			"invokes it and prints the reply. Tool failures exit with status 1.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runCall,
	}

	cmd.Flags().String("server", "", "server executable to spawn (default: this binary)")

	return cmd
}

// callArguments validates args against the catalogue and returns the tool
// name and its JSON arguments.
func callArguments(args []string) (string, json.RawMessage, error) {
	name := args[0]

	c, ok := catalog.Lookup(name)
	if !ok {
		return "", nil, fmt.Errorf("unknown tool %q (available: %s)", name, strings.Join(catalog.Names(), ", "))
	}

	switch {
	case c.TakesPackage && len(args) < 2:
		return "", nil, fmt.Errorf("tool %q requires a package argument", name)
	case !c.TakesPackage && len(args) > 1:
		return "", nil, fmt.Errorf("tool %q takes no arguments", name)
	}

	if !c.TakesPackage {
		return name, json.RawMessage(`{}`), nil
	}

	raw, err := json.Marshal(map[string]string{catalog.PackageArg: args[1]})
	if err != nil {
		return "", nil, err
	}

	return name, raw, nil
}

// serverCommand builds the subprocess running "serve", forwarding the config
// and env flags.
func serverCommand(cmd *cobra.Command) (*exec.Cmd, error) {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate brewmcp executable: %w", err)
		}
		server = exe
	}

	serverArgs := []string{"serve"}
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		serverArgs = append(serverArgs, "--config", cfgPath)
	}
	if envFile, _ := cmd.Flags().GetString("env"); envFile != "" {
		serverArgs = append(serverArgs, "--env", envFile)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		serverArgs = append(serverArgs, "--verbose")
	}

	sub := exec.CommandContext(cmd.Context(), server, serverArgs...) //nolint:gosec // server path is operator-provided
	sub.Stderr = cmd.ErrOrStderr()

	return sub, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	name, arguments, err := callArguments(args)
	if err != nil {
		return err
	}

	sub, err := serverCommand(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	client, err := mcpclient.NewCommand(ctx, sub)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ok, err := client.HasTool(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server does not advertise tool %q", name)
	}

	text, err := client.CallTool(ctx, name, arguments)
	var toolErr *mcpclient.ToolError
	if errors.As(err, &toolErr) {
		return exitError(1, "%s", strings.TrimSpace(toolErr.Text))
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprint(out, text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		_, _ = fmt.Fprintln(out)
	}

	return nil
}
