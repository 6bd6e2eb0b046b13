package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/germanamz/brewmcp/pkg/catalog"
)

// newToolsCmd creates the "tools" subcommand.
func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalogue",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}

	cmd.Flags().Bool("json", false, "print tool descriptors as JSON")

	return cmd
}

type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

func runTools(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	if asJSON {
		commands := catalog.Commands()
		descs := make([]toolDescriptor, 0, len(commands))
		for _, c := range commands {
			descs = append(descs, toolDescriptor{Name: c.Name, Description: c.Description, InputSchema: c.InputSchema()})
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TOOL\tARGS\tDESCRIPTION")
	for _, c := range catalog.Commands() {
		args := "-"
		if c.TakesPackage {
			args = catalog.PackageArg
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, args, c.Description)
	}

	return tw.Flush()
}
