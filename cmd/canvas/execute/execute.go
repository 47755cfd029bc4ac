// Package executecmder provides the execute command, which runs the graph
// on the canvas server and steps through the results.
package executecmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/cmd/canvas/cmdutil"
	"github.com/papercomputeco/canvas/pkg/cliui"
	"github.com/papercomputeco/canvas/pkg/execution"
	"github.com/papercomputeco/canvas/pkg/logger"
)

type executeCommander struct {
	loaded *cmdutil.Loaded
	node   string
	path   string
	noStep bool
	debug  bool

	in  io.Reader
	out io.Writer

	logger   *zap.Logger
	executor *execution.Executor
}

const executeLongDesc string = `Execute the graph on the canvas server and step through the results.

By default the whole workflow runs in topological order. --node runs a single
node against its parents' current replies; --path runs a node and every
ancestor it depends on. Failed nodes are recorded as "Error: ..." results and
do not stop the run.

After the run an interactive prompt replays the execution one step at a time:
  s            Start stepping from the first node
  n / p        Next / previous step
  j <N>        Jump to step N
  h            List past executions
  r <N>        Replay past execution N
  w            Run the whole workflow again
  x <id>       Execute a single node
  t <id>       Execute the path to a node
  reset        Unload the current execution
  q            Quit

Examples:
  canvas execute
  canvas execute --path summary
  canvas execute --node critic --no-step`

const executeShortDesc string = "Execute the graph and step through the results"

func NewExecuteCmd() *cobra.Command {
	cmder := &executeCommander{}

	cmd := &cobra.Command{
		Use:   "execute",
		Short: executeShortDesc,
		Long:  executeLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.node != "" && cmder.path != "" {
				return errors.New("--node and --path are mutually exclusive")
			}
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

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmdutil.AddClientFlags(cmd)
	cmd.Flags().StringVarP(&cmder.node, "node", "n", "", "Execute only this node")
	cmd.Flags().StringVarP(&cmder.path, "path", "p", "", "Execute this node and its ancestors")
	cmd.Flags().BoolVar(&cmder.noStep, "no-step", false, "Print the results and exit")

	return cmd
}

func (c *executeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cmdutil.NewClient(c.loaded.Config, nil, c.logger)
	c.executor = execution.NewExecutor(client, nil, c.logger)

	fmt.Fprintln(c.out)
	var err error
	switch {
	case c.node != "":
		err = c.execute(ctx, execution.KindNode, c.node)
	case c.path != "":
		err = c.execute(ctx, execution.KindPath, c.path)
	default:
		err = c.execute(ctx, execution.KindWorkflow, "")
	}
	if err != nil {
		return err
	}

	if c.noStep {
		return nil
	}
	c.loop(ctx)
	return nil
}

// execute runs one execute call under a spinner and prints the timeline.
func (c *executeCommander) execute(ctx context.Context, kind execution.Kind, target string) error {
	label := "Executing workflow"
	if target != "" {
		label = fmt.Sprintf("Executing %s %s", kind, target)
	}

	err := cliui.Step(c.out, label, func() error {
		var err error
		switch kind {
		case execution.KindNode:
			_, err = c.executor.ExecuteNode(ctx, target)
		case execution.KindPath:
			_, err = c.executor.ExecutePath(ctx, target)
		default:
			_, err = c.executor.ExecuteWorkflow(ctx)
		}
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n%s\n", cliui.Timeline(c.executor.Cursor()))
	return nil
}

func (c *executeCommander) loop(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for ctx.Err() == nil {
		fmt.Fprint(c.out, cliui.KeyStyle.Render("step> "))
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return
		}
		if quit := c.handleLine(ctx, scanner.Text()); quit {
			return
		}
	}
}

// handleLine runs one REPL command and reports whether to quit.
func (c *executeCommander) handleLine(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cursor := c.executor.Cursor()
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "q", "quit", "exit":
		return true
	case "s", "start":
		cursor.StartStepExecution()
	case "n", "next":
		cursor.NextStep()
	case "p", "prev":
		cursor.PreviousStep()
	case "j", "jump":
		n, err := strconv.Atoi(arg)
		if err != nil {
			c.printError("usage: j <step number>")
			return false
		}
		cursor.JumpToStep(n - 1)
	case "h", "history":
		c.printHistory()
		return false
	case "r", "replay":
		if err := c.replay(arg); err != nil {
			c.printError(err.Error())
			return false
		}
	case "w", "workflow":
		c.report(c.execute(ctx, execution.KindWorkflow, ""))
		return false
	case "x", "node":
		c.runTarget(ctx, execution.KindNode, arg)
		return false
	case "t", "path":
		c.runTarget(ctx, execution.KindPath, arg)
		return false
	case "reset":
		cursor.Reset()
	default:
		c.printError("unknown command " + fields[0])
		return false
	}

	c.printCursor()
	return false
}

func (c *executeCommander) runTarget(ctx context.Context, kind execution.Kind, target string) {
	if target == "" {
		c.printError(fmt.Sprintf("usage: %s <node id>", kind))
		return
	}
	c.report(c.execute(ctx, kind, target))
}

// replay accepts a history number as shown by "h" or a history entry ID.
func (c *executeCommander) replay(arg string) error {
	history := c.executor.Cursor().History()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(history) {
			return fmt.Errorf("no execution %d in history", n)
		}
		arg = history[n-1].ID
	}
	_, err := c.executor.Cursor().Replay(arg)
	return err
}

// printCursor shows the timeline and, while stepping, the current node's
// full result.
func (c *executeCommander) printCursor() {
	cursor := c.executor.Cursor()
	fmt.Fprintf(c.out, "\n%s\n", cliui.Timeline(cursor))

	nodeID := cursor.CurrentNode()
	if nodeID == "" {
		return
	}
	result := cursor.Plan().Results[nodeID]
	rendered, err := cliui.RenderMarkdown(result)
	if err != nil {
		c.logger.Debug("markdown render failed", zap.Error(err))
	}
	fmt.Fprintf(c.out, "%s\n%s\n\n", cliui.NameStyle.Render(nodeID), strings.TrimRight(rendered, "\n"))
}

func (c *executeCommander) printHistory() {
	history := c.executor.Cursor().History()
	if len(history) == 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("no executions yet"))
		return
	}
	for i, entry := range history {
		inputs := ""
		if len(entry.Inputs) > 0 {
			inputs = " " + strings.Join(entry.Inputs, ",")
		}
		fmt.Fprintf(c.out, "  %2d. %s%s %s %s\n",
			i+1,
			cliui.NameStyle.Render(string(entry.Kind)),
			inputs,
			cliui.DimStyle.Render(fmt.Sprintf("%d steps", len(entry.Plan.Order))),
			cliui.DimStyle.Render(entry.CreatedAt.Local().Format("15:04:05")),
		)
	}
}

func (c *executeCommander) report(err error) {
	if err != nil {
		c.printError(err.Error())
	}
}

func (c *executeCommander) printError(msg string) {
	fmt.Fprintf(c.out, "  %s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(msg))
}
