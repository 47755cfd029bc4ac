// Package canvascmder
package canvascmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/canvas/cmd/canvas/chat"
	configcmder "github.com/papercomputeco/canvas/cmd/canvas/config"
	executecmder "github.com/papercomputeco/canvas/cmd/canvas/execute"
	graphcmder "github.com/papercomputeco/canvas/cmd/canvas/graph"
	modelscmder "github.com/papercomputeco/canvas/cmd/canvas/models"
	servecmder "github.com/papercomputeco/canvas/cmd/canvas/serve"
	versioncmder "github.com/papercomputeco/canvas/cmd/version"
)

const canvasLongDesc string = `Canvas runs graphs of chatting LLM nodes.

Each node in the graph talks to one model backend (Ollama or Groq) and sees
the latest reply of every parent node as context.

Commands:
  canvas serve      Run the canvas API server
  canvas chat       Chat with graph nodes through a running server
  canvas execute    Execute the graph and step through the results
  canvas graph      Validate and inspect a graph file
  canvas models     List the models available to graph nodes
  canvas config     Manage persistent configuration`

const canvasShortDesc string = "Canvas - LLM node graphs"

func NewCanvasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "canvas",
		Short:        canvasShortDesc,
		Long:         canvasLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .canvas/ directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(executecmder.NewExecuteCmd())
	cmd.AddCommand(graphcmder.NewGraphCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
