// Package inmemory provides a map-backed storage driver for tests and
// ephemeral servers.
package inmemory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the conversation map
	mu sync.RWMutex

	// convs maps node IDs to their ordered messages
	convs map[string][]llm.Message
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		convs: make(map[string][]llm.Message),
	}
}

func (d *Driver) Append(_ context.Context, nodeID string, msgs ...llm.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.convs[nodeID]; !ok {
		d.convs[nodeID] = []llm.Message{}
	}
	d.convs[nodeID] = append(d.convs[nodeID], msgs...)
	return nil
}

func (d *Driver) Messages(_ context.Context, nodeID string) ([]llm.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	msgs, ok := d.convs[nodeID]
	if !ok {
		return nil, storage.ErrNotFound{NodeID: nodeID}
	}
	return slices.Clone(msgs), nil
}

func (d *Driver) Replace(_ context.Context, nodeID string, msgs []llm.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if msgs == nil {
		msgs = []llm.Message{}
	}
	d.convs[nodeID] = slices.Clone(msgs)
	return nil
}

func (d *Driver) Clear(_ context.Context, nodeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.convs, nodeID)
	return nil
}

func (d *Driver) NodeIDs(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.convs))
	for id := range d.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}
