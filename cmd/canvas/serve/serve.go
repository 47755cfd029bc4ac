// Package servecmder provides the serve command that runs the canvas API
// server against the configured storage, model backends and event stream.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/api"
	"github.com/papercomputeco/canvas/cmd/canvas/cmdutil"
	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/backend/groq"
	"github.com/papercomputeco/canvas/pkg/backend/ollama"
	"github.com/papercomputeco/canvas/pkg/config"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/async"
	"github.com/papercomputeco/canvas/pkg/eventbus/kafka"
	"github.com/papercomputeco/canvas/pkg/eventbus/nop"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/logger"
	"github.com/papercomputeco/canvas/pkg/storage"
	"github.com/papercomputeco/canvas/pkg/storage/inmemory"
	"github.com/papercomputeco/canvas/pkg/storage/postgres"
	"github.com/papercomputeco/canvas/pkg/storage/redis"
	"github.com/papercomputeco/canvas/pkg/storage/sqlite"
)

type ServeCommander struct {
	flags struct {
		listen      string
		prefix      string
		upstreamMax int
		driver      string
		sqlitePath  string
		postgresDSN string
		redisAddr   string
		ollamaURL   string
		groqURL     string
		groqAPIKey  string
		graphPath   string
		brokers     string
		topic       string
	}

	cfg   *config.Config
	dir   string
	debug bool

	logger *zap.Logger
}

// serveFlags are the registry keys serve binds into viper.
var serveFlags = []string{
	config.FlagListen,
	config.FlagAPIPrefix,
	config.FlagUpstreamMax,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagRedisAddr,
	config.FlagOllamaURL,
	config.FlagGroqURL,
	config.FlagGroqAPIKey,
	config.FlagGraph,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the canvas API server.

The server owns the node graph, talks to the model backends (Ollama and
Groq), persists node conversations and executes workflows.

Storage drivers:
  memory     conversations live for the lifetime of the process
  sqlite     a local database file (default: .canvas/canvas.db)
  postgres   a PostgreSQL database (--postgres-dsn)
  redis      a Redis server (--redis-addr)

The graph file (default: .canvas/graph.yaml) is watched and reloaded on
every save. When Kafka brokers are configured, execution and chat events
are published to the events topic.

Examples:
  canvas serve
  canvas serve --storage redis --redis-addr localhost:6379
  canvas serve --graph ./flows/review.yaml --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the canvas API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := cmdutil.LoadConfig(cmd, serveFlags)
			if err != nil {
				return err
			}
			cmder.cfg = loaded.Config
			cmder.dir = loaded.Dir
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &f.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIPrefix, &f.prefix)
	config.AddIntFlag(cmd, config.Flags, config.FlagUpstreamMax, &f.upstreamMax)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &f.driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &f.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddr, &f.redisAddr)
	config.AddStringFlag(cmd, config.Flags, config.FlagOllamaURL, &f.ollamaURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagGroqURL, &f.groqURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagGroqAPIKey, &f.groqAPIKey)
	config.AddStringFlag(cmd, config.Flags, config.FlagGraph, &f.graphPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &f.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &f.topic)

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(ctx, c.cfg, c.dir, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	graphPath := config.ResolvePath(c.dir, c.cfg.Graph.Path, config.DefaultGraphFile)
	fg, err := graph.Load(graphPath, c.logger)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}
	c.logger.Info("graph loaded", zap.String("path", graphPath), zap.Int("nodes", fg.Len()))

	publisher, err := newPublisher(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	fg.OnReload(func(g *graph.Graph) {
		c.logger.Info("graph reloaded", zap.String("path", graphPath), zap.Int("nodes", g.Len()))
		_ = publisher.Publish(ctx, eventbus.NewEvent(eventbus.GraphReloaded).With(g.Len()))
	})
	fg.OnCleared(func() {
		_ = publisher.Publish(ctx, eventbus.NewEvent(eventbus.GraphCleared))
	})

	reg := prometheus.NewRegistry()
	registry := newRegistry(c.cfg, publisher, dispatch.NewMetrics(reg), c.logger)

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.Server.Listen,
		Prefix:     c.cfg.Client.APIPrefix,
	}, api.Dependencies{
		Graph:     fg.Graph,
		Store:     store,
		Registry:  registry,
		Publisher: publisher,
		Metrics:   reg,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := fg.Watch(ctx); err != nil {
			errChan <- fmt.Errorf("graph watcher error: %w", err)
		}
	}()

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Join(err, server.Shutdown())
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

// newStore opens the configured conversation store.
func newStore(ctx context.Context, cfg *config.Config, dir string, log *zap.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.StorageSQLite, "":
		path := config.ResolvePath(dir, cfg.Storage.SQLitePath, config.DefaultSQLiteFile)
		d, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		log.Info("using SQLite storage", zap.String("path", path))
		return d, nil

	case config.StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("postgres storage needs --postgres-dsn or storage.postgres_dsn")
		}
		d, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL store: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return d, nil

	case config.StorageRedis:
		d, err := redis.NewDriver(ctx, cfg.Storage.RedisAddr, "", 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}
		log.Info("using Redis storage", zap.String("addr", cfg.Storage.RedisAddr))
		return d, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newPublisher returns the Kafka publisher behind an async pool when brokers
// are configured, and a no-op publisher otherwise.
func newPublisher(cfg *config.Config, log *zap.Logger) (eventbus.Publisher, error) {
	if len(cfg.Events.KafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	sink, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.Events.KafkaBrokers,
		Topic:   cfg.Events.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	pool, err := async.NewPool(&async.Config{Sink: sink, Logger: log})
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("creating event pool: %w", err)
	}

	log.Info("publishing events to kafka",
		zap.Strings("brokers", cfg.Events.KafkaBrokers),
		zap.String("topic", cfg.Events.KafkaTopic),
	)
	return pool, nil
}

// newRegistry builds the upstream model backends. Each backend gets its own
// concurrency cap; the metrics are shared.
func newRegistry(cfg *config.Config, publisher eventbus.Publisher, metrics *dispatch.Metrics, log *zap.Logger) *backend.Registry {
	upstream := func(base string) *dispatch.Dispatcher {
		return dispatch.New(dispatch.Config{
			BaseURL:       base,
			NoPrefix:      true,
			MaxConcurrent: cfg.Server.MaxUpstreamConcurrent,
			Publisher:     publisher,
			Metrics:       metrics,
			Logger:        log.Named("upstream"),
		})
	}

	if cfg.Backends.GroqAPIKey == "" {
		log.Warn("no Groq API key configured, groq nodes will fail")
	}

	return backend.NewRegistry(
		ollama.New(upstream(cfg.Backends.OllamaURL)),
		groq.New(upstream(cfg.Backends.GroqURL), cfg.Backends.GroqAPIKey),
	)
}
