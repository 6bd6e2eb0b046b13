package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand serves MCP over stdio, which is what MCP hosts launch.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "brewmcp",
		Short: "Homebrew tools over the Model Context Protocol",
		Long:  "brewmcp exposes Homebrew commands (install, uninstall, info, upgrade, list, search, doctor, reinstall, outdated) as MCP tools over stdio.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env")
			return loadDotEnv(envFile)
		},
		RunE: runServe,
	}

	root.PersistentFlags().String("config", "", "path to configuration file (default: "+defaultConfigFile+" if present)")
	root.PersistentFlags().String("env", ".env", "path to .env file (ignored if missing)")
	root.PersistentFlags().Bool("verbose", false, "enable debug diagnostics on stderr")
	addServeFlags(root)

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("brewmcp version %s\n", version))

	root.AddCommand(newServeCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newCallCmd())

	return root
}
