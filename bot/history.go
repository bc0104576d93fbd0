package bot

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History is an optional sqlite archive of everything the bot saw and
// said. WAL mode keeps concurrent reads cheap while the bot writes.
type History struct {
	db *sql.DB
}

// Message directions in the archive.
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

// HistoryEntry is one archived message.
type HistoryEntry struct {
	ID        int64
	Direction string
	Peer      string
	Body      string
	SentAt    int64
	CreatedAt time.Time
}

// OpenHistory opens (or creates) the archive database and initializes
// its schema.
func OpenHistory(path string) (*History, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(2)

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return h, nil
}

// Close closes the database.
func (h *History) Close() error { return h.db.Close() }

func (h *History) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		direction  TEXT NOT NULL,
		peer       TEXT NOT NULL,
		body       TEXT NOT NULL,
		sent_at    INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_peer ON messages(peer, id);
	`
	_, err := h.db.Exec(schema)
	return err
}

// RecordInbound archives a received message. sentAt is the envelope
// timestamp in milliseconds.
func (h *History) RecordInbound(peer, body string, sentAt int64) error {
	return h.record(DirectionInbound, peer, body, sentAt)
}

// RecordOutbound archives a message the bot queued.
func (h *History) RecordOutbound(peer, body string) error {
	return h.record(DirectionOutbound, peer, body, 0)
}

func (h *History) record(direction, peer, body string, sentAt int64) error {
	_, err := h.db.Exec(
		`INSERT INTO messages (direction, peer, body, sent_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		direction, peer, body, sentAt, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (h *History) Recent(limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(
		`SELECT id, direction, peer, body, sent_at, created_at
		 FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var created string
		if err := rows.Scan(&e.ID, &e.Direction, &e.Peer, &e.Body, &e.SentAt, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return entries, nil
}

// PeerHistory returns the most recent entries exchanged with one peer,
// newest first.
func (h *History) PeerHistory(peer string, limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(
		`SELECT id, direction, peer, body, sent_at, created_at
		 FROM messages WHERE peer = ? ORDER BY id DESC LIMIT ?`, peer, limit)
	if err != nil {
		return nil, fmt.Errorf("query peer messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var created string
		if err := rows.Scan(&e.ID, &e.Direction, &e.Peer, &e.Body, &e.SentAt, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return entries, nil
}
