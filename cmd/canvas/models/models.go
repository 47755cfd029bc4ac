// Package modelscmder provides the models command, which lists the models
// a running canvas server can reach for each backend.
package modelscmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/cmd/canvas/cmdutil"
	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/cliui"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/logger"
)

// submitter issues one buffered API call. *dispatch.Dispatcher satisfies it.
type submitter interface {
	Submit(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

type modelsCommander struct {
	loaded  *cmdutil.Loaded
	backend string
	limits  bool
	debug   bool

	out    io.Writer
	logger *zap.Logger
	client submitter
}

const modelsLongDesc string = `List the models each backend offers through the canvas server.

Ollama models are the ones pulled on the server's Ollama host, or a default
list when it cannot be reached. Groq models are Groq's hosted catalogue;
--limits adds their published rate limits.

Examples:
  canvas models
  canvas models --backend groq --limits`

const modelsShortDesc string = "List the models available to graph nodes"

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.loaded, err = cmdutil.LoadConfig(cmd, cmdutil.ClientFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmdutil.AddClientFlags(cmd)
	cmd.Flags().StringVarP(&cmder.backend, "backend", "b", "", "Only list this backend's models")
	cmd.Flags().BoolVar(&cmder.limits, "limits", false, "Show Groq rate limits")

	return cmd
}

func (c *modelsCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.client = cmdutil.NewClient(c.loaded.Config, nil, c.logger)
	return c.list(ctx)
}

// list fetches the catalogue and prints it grouped by backend kind.
func (c *modelsCommander) list(ctx context.Context) error {
	var catalogue map[string][]string
	if err := c.get(ctx, backend.ModelsEndpoint, &catalogue); err != nil {
		return fmt.Errorf("listing models: %w", err)
	}

	var limits map[string]backend.ModelLimits
	if c.limits {
		if err := c.get(ctx, backend.GroqLimitsEndpoint, &limits); err != nil {
			return fmt.Errorf("listing groq limits: %w", err)
		}
	}

	kinds := make([]string, 0, len(catalogue))
	for kind := range catalogue {
		if c.backend == "" || c.backend == kind {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return fmt.Errorf("server has no %q backend", c.backend)
	}
	slices.Sort(kinds)

	fmt.Fprintln(c.out)
	for _, kind := range kinds {
		models := catalogue[kind]
		fmt.Fprintf(c.out, "  %s %s\n", cliui.NameStyle.Render(kind),
			cliui.DimStyle.Render(fmt.Sprintf("(%d models)", len(models))))

		width := 0
		for _, m := range models {
			width = max(width, len(m))
		}
		for _, m := range models {
			l, ok := limits[m]
			if kind != backend.Groq || !ok {
				fmt.Fprintf(c.out, "    %s\n", cliui.ValueStyle.Render(m))
				continue
			}
			fmt.Fprintf(c.out, "    %s  %s\n",
				cliui.ValueStyle.Render(fmt.Sprintf("%-*s", width, m)),
				cliui.DimStyle.Render(formatLimits(l)))
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *modelsCommander) get(ctx context.Context, target string, v any) error {
	result, err := c.client.Submit(ctx, dispatch.Request{Method: http.MethodGet, Target: target})
	if err != nil {
		return err
	}
	return result.Decode(v)
}

func formatLimits(l backend.ModelLimits) string {
	return fmt.Sprintf("%s req/min  %s req/day  %s tok/min  %s tok/day",
		limit(l.RequestsPerMinute), limit(l.RequestsPerDay),
		limit(l.TokensPerMinute), limit(l.TokensPerDay))
}

func limit(v int) string {
	if v == backend.NoLimit {
		return "no limit"
	}
	return fmt.Sprintf("%d", v)
}
