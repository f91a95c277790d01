// Package ledger records which messages have already been exported so a
// re-run can skip them instead of creating duplicate sink records.
package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection for the app-owned ledger.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	return &DB{db}, nil
}

// Run summarizes one extraction run.
type Run struct {
	ID         string
	ChatID     string
	ChatTitle  string
	Count      int
	StartedAt  int64
	FinishedAt int64
}

// Exported returns which of the given message IDs were already exported from
// the chat.
func (db *DB) Exported(chatID string, ids []int) (map[int]bool, error) {
	if len(ids) == 0 {
		return map[int]bool{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, chatID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := db.Query(`
		SELECT message_id FROM exported
		WHERE chat_id = ? AND message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query exported: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[int]bool, len(ids))
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

// MarkExported records message IDs as exported (idempotent).
func (db *DB) MarkExported(chatID string, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, id := range ids {
		if _, err := tx.Exec(`
			INSERT INTO exported (chat_id, message_id, exported_at)
			VALUES (?, ?, ?)
			ON CONFLICT(chat_id, message_id) DO NOTHING`,
			chatID, id, now); err != nil {
			return fmt.Errorf("mark exported: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecordRun stores a run summary.
func (db *DB) RecordRun(r Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, chat_id, chat_title, message_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ChatID, r.ChatTitle, r.Count, r.StartedAt, r.FinishedAt)
	return err
}

// RecentRuns returns the most recent run summaries, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, chat_id, chat_title, message_count, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ChatID, &r.ChatTitle, &r.Count, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
