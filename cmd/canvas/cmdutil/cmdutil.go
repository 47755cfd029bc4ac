// Package cmdutil holds the setup shared by canvas subcommands: layered
// config loading and the API client.
package cmdutil

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/config"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/graph"
)

// ClientFlags are the registry keys of every command that talks to a
// running server.
var ClientFlags = []string{
	config.FlagAPITarget,
	config.FlagAPIPrefix,
	config.FlagMaxConcurrent,
	config.FlagGraph,
}

// AddClientFlags registers ClientFlags on cmd. Values are read back through
// viper, the targets only hold the parsed flag.
func AddClientFlags(cmd *cobra.Command) {
	var (
		target, prefix, graphPath string
		maxConcurrent             int
	)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIPrefix, &prefix)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxConcurrent, &maxConcurrent)
	config.AddStringFlag(cmd, config.Flags, config.FlagGraph, &graphPath)
}

// Loaded is a command's resolved configuration.
type Loaded struct {
	Config *config.Config

	// Dir is the resolved .canvas/ directory.
	Dir string
}

// GraphPath resolves the graph file location.
func (l *Loaded) GraphPath() string {
	return config.ResolvePath(l.Dir, l.Config.Graph.Path, config.DefaultGraphFile)
}

// LoadConfig layers the flags named by keys over CANVAS_* env over
// config.toml over defaults.
func LoadConfig(cmd *cobra.Command, keys []string) (*Loaded, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, keys)

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg := config.FromViper(v)
	if cfg.Backends.GroqAPIKey == "" {
		// Groq's conventional environment variable works as a fallback.
		cfg.Backends.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	}
	return &Loaded{Config: cfg, Dir: cfger.Dir()}, nil
}

// NewClient creates the dispatcher every client command talks to the
// server through.
func NewClient(cfg *config.Config, publisher eventbus.Publisher, log *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Config{
		BaseURL:       cfg.Client.APITarget,
		Prefix:        cfg.Client.APIPrefix,
		MaxConcurrent: cfg.Client.MaxConcurrent,
		Publisher:     publisher,
		Logger:        log,
	})
}

// LoadGraph reads the graph file, failing when it defines no nodes.
func LoadGraph(path string, log *zap.Logger) (*graph.FileGraph, error) {
	fg, err := graph.Load(path, log)
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}
	if fg.Len() == 0 {
		return nil, fmt.Errorf("graph %s has no nodes", path)
	}
	return fg, nil
}
