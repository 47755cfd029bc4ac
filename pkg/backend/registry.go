package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps backend kinds to their Backend.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates a registry holding backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds b, replacing any backend of the same kind.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend for kind.
func (r *Registry) Get(kind string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[kind]
	return b, ok
}

// Streaming reports whether kind is a registered streaming backend.
func (r *Registry) Streaming(kind string) bool {
	b, ok := r.Get(kind)
	return ok && b.Streaming()
}

// ExtractReply applies kind's extraction rules to body. Unknown kinds yield
// UnsupportedReply rather than an error.
func (r *Registry) ExtractReply(kind string, body any) (string, error) {
	b, ok := r.Get(kind)
	if !ok {
		return UnsupportedReply, nil
	}
	return b.ExtractReply(body)
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Models lists the models of every registered backend, keyed by kind.
func (r *Registry) Models(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, kind := range r.Kinds() {
		b, _ := r.Get(kind)
		models, err := b.Models(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s models: %w", kind, err)
		}
		out[kind] = models
	}
	return out, nil
}
