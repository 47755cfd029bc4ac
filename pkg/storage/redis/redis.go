// Package redis provides a Redis-backed storage driver. Each conversation
// is a list of JSON-encoded messages, and a set indexes the node IDs.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	backend "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage"
)

// DefaultPrefix namespaces every key the driver writes.
const DefaultPrefix = "canvas:conversation:"

// Driver implements storage.Driver using Redis.
type Driver struct {
	client *backend.Client
	prefix string
}

type Option func(*Driver)

// WithPrefix sets the key prefix for conversations.
func WithPrefix(prefix string) Option {
	return func(d *Driver) {
		d.prefix = prefix
	}
}

// NewDriver connects to the Redis server at address and verifies it is
// reachable.
func NewDriver(ctx context.Context, address, password string, db int, opts ...Option) (*Driver, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewFromClient(client, opts...), nil
}

// NewFromClient creates a driver from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Driver {
	d := &Driver{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) key(nodeID string) string {
	return d.prefix + nodeID
}

func (d *Driver) indexKey() string {
	return d.prefix + "index"
}

func (d *Driver) Append(ctx context.Context, nodeID string, msgs ...llm.Message) error {
	values, err := encode(msgs)
	if err != nil {
		return err
	}

	_, err = d.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.SAdd(ctx, d.indexKey(), nodeID)
		if len(values) > 0 {
			pipe.RPush(ctx, d.key(nodeID), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending messages: %w", err)
	}
	return nil
}

func (d *Driver) Messages(ctx context.Context, nodeID string) ([]llm.Message, error) {
	ok, err := d.client.SIsMember(ctx, d.indexKey(), nodeID).Result()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	if !ok {
		return nil, storage.ErrNotFound{NodeID: nodeID}
	}

	raw, err := d.client.LRange(ctx, d.key(nodeID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}

	msgs := make([]llm.Message, 0, len(raw))
	for _, r := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decoding message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (d *Driver) Replace(ctx context.Context, nodeID string, msgs []llm.Message) error {
	values, err := encode(msgs)
	if err != nil {
		return err
	}

	_, err = d.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.SAdd(ctx, d.indexKey(), nodeID)
		pipe.Del(ctx, d.key(nodeID))
		if len(values) > 0 {
			pipe.RPush(ctx, d.key(nodeID), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing messages: %w", err)
	}
	return nil
}

func (d *Driver) Clear(ctx context.Context, nodeID string) error {
	_, err := d.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.SRem(ctx, d.indexKey(), nodeID)
		pipe.Del(ctx, d.key(nodeID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	return nil
}

func (d *Driver) NodeIDs(ctx context.Context) ([]string, error) {
	ids, err := d.client.SMembers(ctx, d.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the underlying client.
func (d *Driver) Close() error {
	return d.client.Close()
}

func encode(msgs []llm.Message) ([]any, error) {
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encoding message: %w", err)
		}
		values = append(values, string(b))
	}
	return values, nil
}
