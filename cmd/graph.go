package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
)

func newGraphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the task graph in execution order",
		Long: `Prints the validated task graph.

Formats:
  text  numbered topological order with dependencies (default)
  dot   Graphviz digraph, e.g. assetpipe graph --format dot | dot -Tsvg
  json  nodes, edges and order`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "text", "dot", "json":
			default:
				return apperrors.NewUsageError(fmt.Errorf("unknown format %q, expected text, dot or json", format))
			}

			p, err := loadProject()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "dot":
				fmt.Fprint(out, p.graph.RenderDOT(nil))
			case "json":
				data, err := p.graph.RenderJSON(nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			default:
				fmt.Fprint(out, p.graph.RenderText(nil))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, dot or json")
	return cmd
}
