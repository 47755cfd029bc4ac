package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on both "canvas chat" and "canvas execute").
type Flag struct {
	// Name is the long flag name (e.g. "api-target").
	Name string

	// Shorthand is the one-letter short flag (e.g. "a"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.api_target").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen        = "listen"
	FlagUpstreamMax   = "max-upstream-concurrent"
	FlagAPITarget     = "api-target"
	FlagAPIPrefix     = "api-prefix"
	FlagMaxConcurrent = "max-concurrent"
	FlagStorageDriver = "storage"
	FlagSQLite        = "sqlite"
	FlagPostgresDSN   = "postgres-dsn"
	FlagRedisAddr     = "redis-addr"
	FlagOllamaURL     = "ollama-url"
	FlagGroqURL       = "groq-url"
	FlagGroqAPIKey    = "groq-api-key"
	FlagGraph         = "graph"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
)

// Flags is the registry shared by every canvas command.
var Flags = FlagSet{
	FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the API server to listen on"},
	FlagUpstreamMax:   {Name: "max-upstream-concurrent", ViperKey: "server.max_upstream_concurrent", Description: "Maximum in-flight requests to model backends"},
	FlagAPITarget:     {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "Canvas API server URL"},
	FlagAPIPrefix:     {Name: "api-prefix", ViperKey: "client.api_prefix", Description: "Path prefix of the canvas API routes"},
	FlagMaxConcurrent: {Name: "max-concurrent", ViperKey: "client.max_concurrent", Description: "Maximum simultaneous streaming requests"},
	FlagStorageDriver: {Name: "storage", ViperKey: "storage.driver", Description: "Conversation store: memory, sqlite, postgres or redis"},
	FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgresDSN:   {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagRedisAddr:     {Name: "redis-addr", ViperKey: "storage.redis_addr", Description: "Redis address (host:port)"},
	FlagOllamaURL:     {Name: "ollama-url", ViperKey: "backends.ollama_url", Description: "Ollama base URL"},
	FlagGroqURL:       {Name: "groq-url", ViperKey: "backends.groq_url", Description: "Groq OpenAI-compatible base URL"},
	FlagGroqAPIKey:    {Name: "groq-api-key", ViperKey: "backends.groq_api_key", Description: "Groq API key"},
	FlagGraph:         {Name: "graph", Shorthand: "g", ViperKey: "graph.path", Description: "Path to the node graph YAML file"},
	FlagKafkaBrokers:  {Name: "kafka-brokers", ViperKey: "events.kafka_brokers", Description: "Comma separated Kafka brokers for execution events"},
	FlagKafkaTopic:    {Name: "kafka-topic", ViperKey: "events.kafka_topic", Description: "Kafka topic for execution events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
