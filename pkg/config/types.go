package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent canvas configuration stored as config.toml
// in the .canvas/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version  int            `toml:"version"`
	Client   ClientConfig   `toml:"client"`
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Backends BackendsConfig `toml:"backends"`
	Graph    GraphConfig    `toml:"graph"`
	Events   EventsConfig   `toml:"events"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// canvas server (canvas chat, canvas execute).
type ClientConfig struct {
	// APITarget is the server origin, scheme + host + port.
	APITarget     string `toml:"api_target,omitempty"`
	APIPrefix     string `toml:"api_prefix,omitempty"`
	MaxConcurrent int    `toml:"max_concurrent,omitempty"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Listen                string `toml:"listen,omitempty"`
	MaxUpstreamConcurrent int    `toml:"max_upstream_concurrent,omitempty"`
}

// StorageConfig selects and configures the server's conversation store.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite", "postgres" or "redis".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
	RedisAddr   string `toml:"redis_addr,omitempty"`
}

// BackendsConfig holds upstream model provider settings.
type BackendsConfig struct {
	OllamaURL  string `toml:"ollama_url,omitempty"`
	GroqURL    string `toml:"groq_url,omitempty"`
	GroqAPIKey string `toml:"groq_api_key,omitempty"`
}

// GraphConfig locates the node graph file.
type GraphConfig struct {
	Path string `toml:"path,omitempty"`
}

// EventsConfig configures the optional Kafka event stream. Events are only
// published when at least one broker is set.
type EventsConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.api_target":     stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.api_prefix":     stringKey(func(c *Config) *string { return &c.Client.APIPrefix }),
	"client.max_concurrent": intKey("client.max_concurrent", func(c *Config) *int { return &c.Client.MaxConcurrent }),

	"server.listen":                  stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.max_upstream_concurrent": intKey("server.max_upstream_concurrent", func(c *Config) *int { return &c.Server.MaxUpstreamConcurrent }),

	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			if !IsValidStorageDriver(v) {
				return fmt.Errorf("invalid value for storage.driver: %q (available: %s)", v, strings.Join(StorageDrivers(), ", "))
			}
			c.Storage.Driver = v
			return nil
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.redis_addr":   stringKey(func(c *Config) *string { return &c.Storage.RedisAddr }),

	"backends.ollama_url":   stringKey(func(c *Config) *string { return &c.Backends.OllamaURL }),
	"backends.groq_url":     stringKey(func(c *Config) *string { return &c.Backends.GroqURL }),
	"backends.groq_api_key": stringKey(func(c *Config) *string { return &c.Backends.GroqAPIKey }),

	"graph.path": stringKey(func(c *Config) *string { return &c.Graph.Path }),

	"events.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.KafkaBrokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.KafkaBrokers = splitList(v)
			return nil
		},
	},
	"events.kafka_topic": stringKey(func(c *Config) *string { return &c.Events.KafkaTopic }),
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
