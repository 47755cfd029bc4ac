// Package sqlstore implements storage.Driver over database/sql. The schema
// and statements are portable across the SQLite and PostgreSQL drivers.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		node_id    TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		node_id TEXT    NOT NULL REFERENCES conversations(node_id) ON DELETE CASCADE,
		seq     INTEGER NOT NULL,
		role    TEXT    NOT NULL,
		content TEXT    NOT NULL,
		PRIMARY KEY (node_id, seq)
	)`,
}

// Store implements storage.Driver on a *sql.DB.
type Store struct {
	DB *sql.DB
}

// New migrates the schema on db and returns a Store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &Store{DB: db}, nil
}

func (s *Store) Append(ctx context.Context, nodeID string, msgs ...llm.Message) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensure(ctx, tx, nodeID); err != nil {
			return err
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE node_id = $1`, nodeID,
		).Scan(&next); err != nil {
			return fmt.Errorf("reading sequence: %w", err)
		}

		return insert(ctx, tx, nodeID, next, msgs)
	})
}

func (s *Store) Messages(ctx context.Context, nodeID string) ([]llm.Message, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE node_id = $1`, nodeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound{NodeID: nodeID}
	}
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE node_id = $1 ORDER BY seq`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	defer rows.Close()

	msgs := []llm.Message{}
	for rows.Next() {
		var m llm.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) Replace(ctx context.Context, nodeID string, msgs []llm.Message) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensure(ctx, tx, nodeID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE node_id = $1`, nodeID); err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		return insert(ctx, tx, nodeID, 0, msgs)
	})
}

func (s *Store) Clear(ctx context.Context, nodeID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE node_id = $1`, nodeID); err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE node_id = $1`, nodeID); err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		return nil
	})
}

func (s *Store) NodeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT node_id FROM conversations ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func ensure(ctx context.Context, tx *sql.Tx, nodeID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (node_id) VALUES ($1) ON CONFLICT (node_id) DO NOTHING`, nodeID)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

func insert(ctx context.Context, tx *sql.Tx, nodeID string, seq int, msgs []llm.Message) error {
	for i, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (node_id, seq, role, content) VALUES ($1, $2, $3, $4)`,
			nodeID, seq+i, m.Role, m.Content,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}
	return nil
}
