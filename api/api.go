package api

import (
	"errors"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/nop"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/logger"
	"github.com/papercomputeco/canvas/pkg/storage"
	"github.com/papercomputeco/canvas/pkg/workflow"
)

// Dependencies are the collaborators the server is built from. Graph,
// Store and Registry are required.
type Dependencies struct {
	Graph     *graph.Graph
	Store     storage.Driver
	Registry  *backend.Registry
	Publisher eventbus.Publisher

	// Registry for the server's own metrics. A fresh registry is used when
	// nil; it is also what /metrics serves.
	Metrics *prometheus.Registry
}

// Server is the API server for chatting with and executing canvas graphs.
type Server struct {
	config    Config
	graph     *graph.Graph
	store     storage.Driver
	registry  *backend.Registry
	workflow  *workflow.Service
	publisher eventbus.Publisher
	metrics   *Metrics
	logger    *zap.Logger
	app       *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, deps Dependencies, log *zap.Logger) (*Server, error) {
	if deps.Graph == nil || deps.Store == nil || deps.Registry == nil {
		return nil, errors.New("api server needs a graph, a store and a backend registry")
	}
	if config.Prefix == "" {
		config.Prefix = dispatch.DefaultPrefix
	}
	if deps.Publisher == nil {
		deps.Publisher = nop.NewPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = prometheus.NewRegistry()
	}
	log = logger.OrNop(log)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		graph:     deps.Graph,
		store:     deps.Store,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		metrics:   NewMetrics(deps.Metrics),
		logger:    log,
		app:       app,
		workflow: workflow.New(workflow.Config{
			Graph:     deps.Graph,
			Store:     deps.Store,
			Registry:  deps.Registry,
			Publisher: deps.Publisher,
			Logger:    log,
		}),
	}

	r := app.Group(config.Prefix)
	r.Get("/ping", s.handlePing)
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))

	r.Post("/node/chat", s.handleNodeChat)
	r.Get(backend.ModelsEndpoint, s.handleModels)
	r.Get(backend.GroqLimitsEndpoint, s.handleGroqModelLimits)

	r.Post("/execute", s.handleExecuteWorkflow)
	r.Post("/execute/path", s.handleExecutePath)
	r.Post("/nodes/:id/execute", s.handleExecuteNode)
	r.Get("/execution-order", s.handleExecutionOrder)
	r.Get("/graph/validate", s.handleValidateGraph)
	r.Get("/graph", s.handleGetGraph)

	r.Get("/conversations", s.handleListConversations)
	r.Get("/conversations/:node_id", s.handleGetConversation)
	r.Post("/conversations/:node_id", s.handleSaveConversation)
	r.Delete("/conversations/:node_id", s.handleDeleteConversation)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("prefix", s.config.Prefix),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying fiber app, for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}
