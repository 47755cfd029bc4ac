package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/canvas/pkg/logger"
)

// Edge is a parent to child connection declared outside the node list.
type Edge struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// document is the YAML layout of a graph file.
type document struct {
	Nodes []Node `yaml:"nodes"`
	Edges []Edge `yaml:"edges,omitempty"`
}

// Parse decodes a YAML graph definition. Edges are folded into each target
// node's parent list.
func Parse(data []byte) ([]Node, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing graph: %w", err)
	}

	index := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		index[n.ID] = i
	}
	for _, e := range doc.Edges {
		i, ok := index[e.Target]
		if !ok {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.Source, e.Target, ErrNodeNotFound)
		}
		doc.Nodes[i].Parents = appendUnique(doc.Nodes[i].Parents, e.Source)
	}
	return doc.Nodes, nil
}

// Marshal encodes nodes as a YAML graph definition.
func Marshal(nodes []Node) ([]byte, error) {
	return yaml.Marshal(document{Nodes: nodes})
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// FileGraph is a Graph backed by a YAML file that can be watched for edits.
type FileGraph struct {
	*Graph

	path   string
	logger *zap.Logger

	mu        sync.Mutex
	onReload  []func(*Graph)
	onCleared []func()
}

// Load reads the graph file at path.
func Load(path string, log *zap.Logger) (*FileGraph, error) {
	fg := &FileGraph{
		Graph:  &Graph{},
		path:   path,
		logger: logger.OrNop(log),
	}
	if err := fg.Reload(); err != nil {
		return nil, err
	}
	return fg, nil
}

// Path returns the backing file path.
func (fg *FileGraph) Path() string {
	return fg.path
}

// OnReload registers fn to run after every successful reload.
func (fg *FileGraph) OnReload(fn func(*Graph)) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.onReload = append(fg.onReload, fn)
}

// OnCleared registers fn to run when a reload leaves the graph empty.
func (fg *FileGraph) OnCleared(fn func()) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.onCleared = append(fg.onCleared, fn)
}

// Reload re-reads the file. A missing file is an empty graph. On a parse
// failure the previous graph is kept.
func (fg *FileGraph) Reload() error {
	data, err := os.ReadFile(fg.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading graph file: %w", err)
	}

	nodes, err := Parse(data)
	if err != nil {
		return err
	}
	if err := fg.Graph.replace(nodes); err != nil {
		return err
	}

	fg.mu.Lock()
	reload := append([]func(*Graph){}, fg.onReload...)
	cleared := append([]func(){}, fg.onCleared...)
	fg.mu.Unlock()

	for _, fn := range reload {
		fn(fg.Graph)
	}
	if len(nodes) == 0 {
		for _, fn := range cleared {
			fn()
		}
	}
	return nil
}

// Save writes nodes to the backing file and reloads it.
func (fg *FileGraph) Save(nodes []Node) error {
	data, err := Marshal(nodes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fg.path), 0o755); err != nil {
		return fmt.Errorf("creating graph directory: %w", err)
	}
	if err := os.WriteFile(fg.path, data, 0o600); err != nil {
		return fmt.Errorf("writing graph file: %w", err)
	}
	return fg.Reload()
}

// watchDebounce coalesces the bursts of events a single save produces,
// including the truncate that precedes a rewrite.
const watchDebounce = 75 * time.Millisecond

// Watch reloads the graph whenever its file is written, created or removed,
// until ctx is cancelled. The parent directory is watched so editors that
// replace the file atomically are seen.
func (fg *FileGraph) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating graph watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(fg.path)); err != nil {
		return fmt.Errorf("watching graph dir: %w", err)
	}

	target := filepath.Clean(fg.path)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchDebounce)
		case <-timer.C:
			if err := fg.Reload(); err != nil {
				fg.logger.Warn("graph reload failed, keeping previous graph",
					zap.String("path", fg.path),
					zap.Error(err),
				)
				continue
			}
			fg.logger.Info("graph reloaded",
				zap.String("path", fg.path),
				zap.Int("nodes", fg.Len()),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("graph watcher error: %w", err)
		}
	}
}
