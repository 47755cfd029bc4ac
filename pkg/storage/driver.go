// Package storage persists node conversations on the server side.
package storage

import (
	"context"
	"errors"

	"github.com/papercomputeco/canvas/pkg/llm"
)

// Driver defines the interface for persisting and retrieving node
// conversations in a storage backend. Messages are kept in append order.
type Driver interface {
	// Append adds msgs to the end of nodeID's conversation, creating the
	// conversation if needed.
	Append(ctx context.Context, nodeID string, msgs ...llm.Message) error

	// Messages returns nodeID's conversation in order. It returns
	// ErrNotFound when the conversation has never been created.
	Messages(ctx context.Context, nodeID string) ([]llm.Message, error)

	// Replace swaps nodeID's conversation for msgs.
	Replace(ctx context.Context, nodeID string, msgs []llm.Message) error

	// Clear removes nodeID's conversation entirely. Clearing an unknown
	// conversation is a no-op.
	Clear(ctx context.Context, nodeID string) error

	// NodeIDs returns every node with a conversation, sorted.
	NodeIDs(ctx context.Context) ([]string, error)

	// Close closes the store and releases any resources.
	Close() error
}

// MessagesOrEmpty is Messages with a missing conversation read as empty.
func MessagesOrEmpty(ctx context.Context, d Driver, nodeID string) ([]llm.Message, error) {
	msgs, err := d.Messages(ctx, nodeID)
	if IsNotFound(err) {
		return []llm.Message{}, nil
	}
	return msgs, err
}

// LastAssistant returns the content of nodeID's most recent assistant
// message, or "" when it has none.
func LastAssistant(ctx context.Context, d Driver, nodeID string) (string, error) {
	msgs, err := MessagesOrEmpty(ctx, d, nodeID)
	if err != nil {
		return "", err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleAssistant {
			return msgs[i].Content, nil
		}
	}
	return "", nil
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
