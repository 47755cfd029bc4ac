// Package configcmder provides the config command for managing persistent
// canvas configuration stored in the .canvas/ directory.
package configcmder

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/canvas/pkg/config"
)

const configLongDesc string = `Manage persistent canvas configuration.

Configuration is stored as config.toml in the .canvas/ directory and provides
default values for command flags. CLI flags and CANVAS_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.api_target, client.api_prefix, client.max_concurrent,
  server.listen, server.max_upstream_concurrent,
  storage.driver, storage.sqlite_path, storage.postgres_dsn, storage.redis_addr,
  backends.ollama_url, backends.groq_url, backends.groq_api_key,
  graph.path, events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  canvas config set <key> <value>    Set a configuration value
  canvas config get <key>            Get a configuration value
  canvas config list                 List all configuration values

Examples:
  canvas config set storage.driver redis
  canvas config set events.kafka_brokers localhost:9092
  canvas config get backends.ollama_url
  canvas config list`

const configShortDesc string = "Manage persistent canvas configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// secretKeys are never echoed back in full.
var secretKeys = map[string]bool{
	"backends.groq_api_key": true,
	"storage.postgres_dsn":  true,
}

// displayValue masks secrets down to their last four characters.
func displayValue(key, value string) string {
	if !secretKeys[key] || value == "" {
		return value
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 8) + value[len(value)-4:]
}
