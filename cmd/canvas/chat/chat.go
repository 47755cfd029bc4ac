// Package chatcmder provides the chat command for talking to graph nodes
// through a running canvas server.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/cmd/canvas/cmdutil"
	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/backend/groq"
	"github.com/papercomputeco/canvas/pkg/backend/ollama"
	"github.com/papercomputeco/canvas/pkg/cliui"
	"github.com/papercomputeco/canvas/pkg/conversation"
	"github.com/papercomputeco/canvas/pkg/dotdir"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/memory"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/logger"
	"github.com/papercomputeco/canvas/pkg/stream"
)

var (
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
	systemPrompt    = cliui.SystemStyle.Render("system> ")
)

func userPrompt(nodeID string) string {
	if nodeID == "" {
		nodeID = "no node"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render(nodeID + "> ")
}

type chatCommander struct {
	loaded *cmdutil.Loaded
	node   string
	fresh  bool
	debug  bool

	in  io.Reader
	out io.Writer

	logger  *zap.Logger
	graph   *graph.FileGraph
	events  *memory.Publisher
	orch    *conversation.Orchestrator
	dotdir  *dotdir.Manager
	dirFlag string

	// streamed is set once the current reply started printing chunks.
	streamed bool
}

const chatLongDesc string = `Chat with the nodes of a canvas graph through a running server.

Each node answers with its own backend, model and system message, and sees
the latest reply of every parent node. Streaming backends (Ollama) print the
reply as it arrives.

The session (every node's conversation and the selected node) is kept in
.canvas/session.json and restored on the next run unless --fresh is given.

Commands inside the chat:
  /nodes          List graph nodes
  /node <id>      Switch to a node
  /history        Show the current node's conversation
  /clear          Clear the current node's conversation
  /save           Persist the current node's conversation on the server
  /load           Replace the current node's conversation with the server copy
  /exit           Quit (Ctrl+D works too)

Examples:
  canvas chat --node summarizer
  canvas chat --api-target http://gpu-box:5000 --graph ./flows/review.yaml`

const chatShortDesc string = "Chat with graph nodes through the canvas server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.loaded, err = cmdutil.LoadConfig(cmd, cmdutil.ClientFlags)
			cmder.dirFlag, _ = cmd.Flags().GetString("config-dir")
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
	cmd.Flags().StringVarP(&cmder.node, "node", "n", "", "Node to start chatting with")
	cmd.Flags().BoolVar(&cmder.fresh, "fresh", false, "Ignore the saved session")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fg, err := cmdutil.LoadGraph(c.loaded.GraphPath(), c.logger)
	if err != nil {
		return err
	}
	c.setup(fg, cmdutil.NewClient(c.loaded.Config, nil, c.logger))

	go func() {
		if err := fg.Watch(ctx); err != nil {
			c.logger.Warn("graph watch stopped", zap.Error(err))
		}
	}()

	c.dotdir = dotdir.NewManager()
	if err := c.restore(ctx); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s %s\n", cliui.KeyStyle.Render("Server:"), cliui.ValueStyle.Render(c.loaded.Config.Client.APITarget))
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Graph:"), cliui.ValueStyle.Render(fg.Path()))
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type a message and press Enter. /nodes lists nodes, /exit or Ctrl+D quits."))

	c.loop(ctx)

	state := &dotdir.SessionState{
		ActiveNode:    c.orch.ActiveNode(),
		Conversations: c.orch.Export(),
	}
	if err := c.dotdir.SaveSession(state, c.dirFlag); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	fmt.Fprintln(c.out)
	return nil
}

// setup builds the orchestrator over fg and client. The memory publisher
// turns lifecycle events into terminal output.
func (c *chatCommander) setup(fg *graph.FileGraph, client conversation.Dispatcher) {
	c.graph = fg
	c.events = memory.NewPublisher()

	var streamer conversation.Streamer
	if opener, ok := client.(stream.Opener); ok {
		streamer = stream.NewReader(opener, c.events, c.logger)
	}

	c.orch = conversation.New(conversation.Config{
		Graph:      fg.Graph,
		Store:      conversation.NewStore(),
		Dispatcher: client,
		Streamer:   streamer,
		Registry:   backend.NewRegistry(ollama.New(nil), groq.New(nil, "")),
		Publisher:  c.events,
		Logger:     c.logger,
		OnChunk:    c.printChunk,
	})

	c.events.Subscribe(eventbus.ConversationActivated, func(e *eventbus.Event) {
		label := e.NodeID
		if node, ok := e.Payload.(*graph.Node); ok {
			label = node.Label()
		}
		fmt.Fprintf(c.out, "  %s %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(label),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(c.orch.History(e.NodeID)))),
		)
	})
	c.events.Subscribe(eventbus.GraphCleared, func(_ *eventbus.Event) {
		c.orch.HandleGraphCleared(context.Background())
		fmt.Fprintf(c.out, "\n  %s\n", cliui.SystemStyle.Render("graph file is empty, all conversations were cleared"))
	})

	fg.OnCleared(func() {
		_ = c.events.Publish(context.Background(), eventbus.NewEvent(eventbus.GraphCleared))
	})
}

// restore imports the saved session and selects the starting node.
func (c *chatCommander) restore(ctx context.Context) error {
	active := ""
	if !c.fresh {
		state, err := c.dotdir.LoadSession(c.dirFlag)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		if state != nil {
			if err := c.orch.Import(ctx, state.Conversations); err != nil {
				return fmt.Errorf("restoring session: %w", err)
			}
			active = state.ActiveNode
			fmt.Fprintf(c.out, "  %s Restored %d conversations\n", cliui.SuccessMark, len(state.Conversations))
		}
	}

	if c.node != "" {
		active = c.node
	}
	if active == "" {
		return nil
	}
	if err := c.orch.Activate(ctx, active); err != nil {
		if c.node != "" {
			return err
		}
		// The saved node may have been removed from the graph since.
		c.logger.Debug("saved active node not in graph", zap.String("node_id", active))
	}
	return nil
}

func (c *chatCommander) loop(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for ctx.Err() == nil {
		fmt.Fprint(c.out, userPrompt(c.orch.ActiveNode()))
		if !scanner.Scan() {
			return
		}
		if quit := c.handleLine(ctx, scanner.Text()); quit {
			return
		}
	}
}

// handleLine runs one line of input and reports whether the session ended.
func (c *chatCommander) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	active := c.orch.ActiveNode()

	switch command {
	case "/exit", "/quit":
		return true
	case "/nodes":
		c.printNodes()
	case "/node":
		if arg == "" {
			c.printError("usage: /node <id>")
			return false
		}
		if err := c.orch.Activate(ctx, arg); err != nil {
			c.printError(err.Error())
		}
	case "/history":
		if c.requireActive(active) {
			c.printHistory(active)
		}
	case "/clear":
		if c.requireActive(active) {
			c.orch.Clear(ctx, active)
			fmt.Fprintf(c.out, "  %s cleared %s\n", cliui.SuccessMark, active)
		}
	case "/save":
		if c.requireActive(active) {
			c.report(fmt.Sprintf("saved %s", active), c.orch.Save(ctx, active))
		}
	case "/load":
		if c.requireActive(active) {
			err := c.orch.Load(ctx, active)
			c.report(fmt.Sprintf("loaded %s (%d messages)", active, len(c.orch.History(active))), err)
		}
	default:
		c.printError("unknown command " + command)
	}
	return false
}

func (c *chatCommander) send(ctx context.Context, text string) {
	active := c.orch.ActiveNode()
	if !c.requireActive(active) {
		return
	}

	c.streamed = false
	msg := c.orch.SendMessage(ctx, text, nil)
	if msg == nil {
		return
	}

	switch {
	case msg.Role == llm.RoleSystem:
		if c.streamed {
			fmt.Fprintln(c.out)
		}
		fmt.Fprintf(c.out, "%s%s\n\n", systemPrompt, msg.Content)
	case c.streamed:
		fmt.Fprint(c.out, "\n\n")
	default:
		rendered, err := cliui.RenderMarkdown(msg.Content)
		if err != nil {
			c.logger.Debug("markdown render failed", zap.Error(err))
		}
		fmt.Fprintf(c.out, "%s\n%s\n", assistantPrompt, strings.TrimRight(rendered, "\n"))
	}
}

func (c *chatCommander) printChunk(_ string, chunk string) {
	if !c.streamed {
		fmt.Fprint(c.out, assistantPrompt)
		c.streamed = true
	}
	fmt.Fprint(c.out, chunk)
}

func (c *chatCommander) printNodes() {
	active := c.orch.ActiveNode()
	nodes := c.graph.Nodes()
	slices.SortFunc(nodes, func(a, b graph.Node) int { return strings.Compare(a.ID, b.ID) })

	for _, n := range nodes {
		mark := " "
		if n.ID == active {
			mark = "*"
		}
		fmt.Fprintf(c.out, "  %s %s %s %s\n",
			mark,
			cliui.NameStyle.Render(n.ID),
			cliui.DimStyle.Render(n.Backend+"/"+n.Model),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(c.orch.History(n.ID)))),
		)
	}
}

func (c *chatCommander) printHistory(nodeID string) {
	history := c.orch.History(nodeID)
	if len(history) == 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("no messages yet"))
		return
	}
	for _, m := range history {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render(m.Role+":"), m.Content)
	}
}

func (c *chatCommander) requireActive(active string) bool {
	if active == "" {
		c.printError("no node selected, use /node <id>")
		return false
	}
	return true
}

func (c *chatCommander) report(msg string, err error) {
	if err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintf(c.out, "  %s %s\n", cliui.SuccessMark, msg)
}

func (c *chatCommander) printError(msg string) {
	fmt.Fprintf(c.out, "  %s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(msg))
}
