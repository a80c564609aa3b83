// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

// Package history stores the per-room message transcript in a SQLite
// file so it survives restarts. Messages are appended as they arrive
// and pruned to a configurable per-room cap; the most recent entries
// are replayed into the display when a room opens.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/smoothtalker/smoothtalker/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id      INTEGER PRIMARY KEY,
	room_id INTEGER NOT NULL,
	sender  TEXT NOT NULL,
	content TEXT NOT NULL,
	at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_by_room ON messages (room_id, id);
`

// Message is one transcript entry. System notices are stored with an
// empty Sender.
type Message struct {
	RoomID  int
	Sender  string
	Content string
	At      time.Time
}

// Config holds the parameters for opening a history store.
type Config struct {
	// Path is the database file path. Required.
	Path string

	// MessagesPerRoom caps the retained transcript per room; appends
	// beyond the cap prune the oldest entries. Zero means unlimited.
	MessagesPerRoom int

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Store is the transcript database. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	cap    int
	logger *slog.Logger
}

// Open opens (creating if necessary) the history database at
// cfg.Path. The caller must Close the store when done.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return &Store{pool: pool, cap: cfg.MessagesPerRoom, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Append records one message and prunes the room's transcript to the
// configured cap.
func (s *Store) Append(ctx context.Context, message Message) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO messages (room_id, sender, content, at) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{message.RoomID, message.Sender, message.Content, message.At.Unix()},
		})
	if err != nil {
		return fmt.Errorf("history: appending message for room %d: %w", message.RoomID, err)
	}

	if s.cap <= 0 {
		return nil
	}
	err = sqlitex.Execute(conn, `
		DELETE FROM messages WHERE room_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT ?
		)`,
		&sqlitex.ExecOptions{
			Args: []any{message.RoomID, message.RoomID, s.cap},
		})
	if err != nil {
		return fmt.Errorf("history: pruning room %d: %w", message.RoomID, err)
	}
	return nil
}

// Recent returns up to limit of the room's newest messages in
// chronological order. A non-positive limit uses the store's per-room
// cap, or a default of 200 when the cap is unlimited.
func (s *Store) Recent(ctx context.Context, roomID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = s.cap
	}
	if limit <= 0 {
		limit = 200
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var messages []Message
	err = sqlitex.Execute(conn,
		"SELECT sender, content, at FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{roomID, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				messages = append(messages, Message{
					RoomID:  roomID,
					Sender:  stmt.ColumnText(0),
					Content: stmt.ColumnText(1),
					At:      time.Unix(stmt.ColumnInt64(2), 0),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: reading transcript for room %d: %w", roomID, err)
	}

	// Newest-first query for the LIMIT; flip to display order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
