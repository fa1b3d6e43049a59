// Package history keeps a local sqlite transcript of delivered messages.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one delivered message as recorded locally.
type Entry struct {
	ID         int64
	SessionID  string
	Channel    string
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// History appends delivered messages to a local sqlite database.
type History struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	channel     TEXT NOT NULL,
	sender      TEXT NOT NULL,
	body        TEXT NOT NULL,
	received_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, id);
`

// Open creates or opens the transcript database at dbPath.
func Open(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// Append records a delivered message.
func (h *History) Append(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO messages (session_id, channel, sender, body, received_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := h.db.ExecContext(ctx, query, e.SessionID, e.Channel, e.Sender, e.Body, e.ReceivedAt.UTC()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages for a channel, oldest first.
func (h *History) Recent(ctx context.Context, channel string, limit int) ([]Entry, error) {
	query := `
		SELECT id, session_id, channel, sender, body, received_at
		FROM (
			SELECT id, session_id, channel, sender, body, received_at
			FROM messages
			WHERE channel = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`
	rows, err := h.db.QueryContext(ctx, query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Channel, &e.Sender, &e.Body, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return entries, nil
}
