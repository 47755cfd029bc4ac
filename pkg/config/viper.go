package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/canvas/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CANVAS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CANVAS_SERVER_LISTEN, CANVAS_CLIENT_API_TARGET, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Environment variables: CANVAS_SERVER_LISTEN, CANVAS_STORAGE_DRIVER, etc.
	v.SetEnvPrefix("CANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper decodes the layered settings in v into a Config.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			APITarget:     v.GetString("client.api_target"),
			APIPrefix:     v.GetString("client.api_prefix"),
			MaxConcurrent: v.GetInt("client.max_concurrent"),
		},
		Server: ServerConfig{
			Listen:                v.GetString("server.listen"),
			MaxUpstreamConcurrent: v.GetInt("server.max_upstream_concurrent"),
		},
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
			RedisAddr:   v.GetString("storage.redis_addr"),
		},
		Backends: BackendsConfig{
			OllamaURL:  v.GetString("backends.ollama_url"),
			GroqURL:    v.GetString("backends.groq_url"),
			GroqAPIKey: v.GetString("backends.groq_api_key"),
		},
		Graph: GraphConfig{
			Path: v.GetString("graph.path"),
		},
		Events: EventsConfig{
			KafkaBrokers: brokers(v),
			KafkaTopic:   v.GetString("events.kafka_topic"),
		},
	}
}

// brokers accepts both a TOML array and a comma separated env value.
func brokers(v *viper.Viper) []string {
	var out []string
	for _, b := range v.GetStringSlice("events.kafka_brokers") {
		out = append(out, splitList(b)...)
	}
	return out
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.api_prefix", d.Client.APIPrefix)
	v.SetDefault("client.max_concurrent", d.Client.MaxConcurrent)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.max_upstream_concurrent", d.Server.MaxUpstreamConcurrent)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.redis_addr", d.Storage.RedisAddr)

	// Backends
	v.SetDefault("backends.ollama_url", d.Backends.OllamaURL)
	v.SetDefault("backends.groq_url", d.Backends.GroqURL)
	v.SetDefault("backends.groq_api_key", d.Backends.GroqAPIKey)

	// Graph
	v.SetDefault("graph.path", d.Graph.Path)

	// Events
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)
}
