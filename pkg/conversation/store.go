package conversation

import (
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/canvas/pkg/llm"
)

// Store maps node identifiers to their ordered message history.
// Histories are append-only except for explicit clears and replacements.
type Store struct {
	mu    sync.RWMutex
	convs map[string][]llm.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{convs: make(map[string][]llm.Message)}
}

// Ensure creates an empty conversation for nodeID if none exists.
func (s *Store) Ensure(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[nodeID]; !ok {
		s.convs[nodeID] = []llm.Message{}
	}
}

// Append adds msg to the end of nodeID's conversation.
func (s *Store) Append(nodeID string, msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[nodeID] = append(s.convs[nodeID], msg)
}

// History returns a copy of nodeID's conversation.
func (s *Store) History(nodeID string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.convs[nodeID])
}

// Has reports whether a conversation exists for nodeID.
func (s *Store) Has(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.convs[nodeID]
	return ok
}

// LastAssistant returns the content of the most recent assistant message in
// nodeID's conversation, or "" when there is none.
func (s *Store) LastAssistant(nodeID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.convs[nodeID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

// Replace swaps nodeID's conversation for a copy of msgs.
func (s *Store) Replace(nodeID string, msgs []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msgs == nil {
		msgs = []llm.Message{}
	}
	s.convs[nodeID] = slices.Clone(msgs)
}

// Clear truncates nodeID's conversation, keeping the entry.
func (s *Store) Clear(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[nodeID]; ok {
		s.convs[nodeID] = []llm.Message{}
	}
}

// ClearAll drops every conversation.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = make(map[string][]llm.Message)
}

// Snapshot returns a deep copy of every conversation.
func (s *Store) Snapshot() map[string][]llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]llm.Message, len(s.convs))
	for id, msgs := range s.convs {
		out[id] = slices.Clone(msgs)
	}
	return out
}

// Restore replaces the whole store with a copy of data.
func (s *Store) Restore(data map[string][]llm.Message) {
	convs := make(map[string][]llm.Message, len(data))
	for id, msgs := range data {
		if msgs == nil {
			msgs = []llm.Message{}
		}
		convs[id] = slices.Clone(msgs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = convs
}

// NodeIDs returns the nodes with a conversation, sorted.
func (s *Store) NodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
