// Package graphcmder provides the graph command for validating and
// inspecting a graph file without a running server.
package graphcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/canvas/cmd/canvas/cmdutil"
	"github.com/papercomputeco/canvas/pkg/cliui"
	"github.com/papercomputeco/canvas/pkg/config"
	"github.com/papercomputeco/canvas/pkg/graph"
)

const graphLongDesc string = `Validate and inspect a canvas graph file.

The graph file defaults to graph.yaml in the .canvas/ directory and can be
set with --graph or graph.path.

Examples:
  canvas graph validate
  canvas graph order --graph ./flows/review.yaml
  canvas graph path summary`

const graphShortDesc string = "Validate and inspect a graph file"

func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: graphShortDesc,
		Long:  graphLongDesc,
	}

	cmd.AddCommand(newSubCmd("validate", "Check the graph for cycles", cobra.NoArgs, runValidate))
	cmd.AddCommand(newSubCmd("order", "Print the execution order", cobra.NoArgs, runOrder))
	cmd.AddCommand(newSubCmd("path <node-id>", "Print the nodes a path execution runs", cobra.ExactArgs(1), runPath))

	return cmd
}

type runFunc func(w io.Writer, g *graph.Graph, args []string) error

func newSubCmd(use, short string, args cobra.PositionalArgs, run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := cmdutil.LoadConfig(cmd, []string{config.FlagGraph})
			if err != nil {
				return err
			}

			path := loaded.GraphPath()
			fg, err := graph.Load(path, nil)
			if err != nil {
				return fmt.Errorf("loading graph: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n  %s %s %s\n\n",
				cliui.KeyStyle.Render("Graph:"),
				cliui.ValueStyle.Render(path),
				cliui.DimStyle.Render(fmt.Sprintf("(%d nodes)", fg.Len())),
			)
			return run(w, fg.Graph, args)
		},
	}

	var graphPath string
	config.AddStringFlag(cmd, config.Flags, config.FlagGraph, &graphPath)
	return cmd
}

func runValidate(w io.Writer, g *graph.Graph, _ []string) error {
	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		fmt.Fprintf(w, "  %s Graph is valid for execution\n\n", cliui.SuccessMark)
		return nil
	}

	fmt.Fprintf(w, "  %s %s\n", cliui.FailMark, graph.ErrCycle)
	for _, cycle := range cycles {
		fmt.Fprintf(w, "    %s\n", cliui.ErrorStyle.Render(strings.Join(append(cycle, cycle[0]), " -> ")))
	}
	fmt.Fprintln(w)
	return graph.ErrCycle
}

func runOrder(w io.Writer, g *graph.Graph, _ []string) error {
	order, err := g.TopologicalSort()
	if err != nil {
		return err
	}
	printOrder(w, g, order)
	return nil
}

func runPath(w io.Writer, g *graph.Graph, args []string) error {
	order, err := g.PathTo(args[0])
	if err != nil {
		return err
	}
	printOrder(w, g, order)
	return nil
}

func printOrder(w io.Writer, g *graph.Graph, order []string) {
	for i, id := range order {
		line := fmt.Sprintf("  %2d. %s", i+1, cliui.NameStyle.Render(id))
		if n, ok := g.NodeData(id); ok {
			line += " " + cliui.DimStyle.Render(n.Backend+"/"+n.Model)
			if len(n.Parents) > 0 {
				line += " " + cliui.DimStyle.Render("<- "+strings.Join(n.Parents, ", "))
			}
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}
