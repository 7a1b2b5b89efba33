package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// schema creates the history table and its user index. citations holds a
// JSON array of URL strings and defaults to the empty list.
const schema = `
CREATE TABLE IF NOT EXISTS chat_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content    TEXT NOT NULL,
	citations  TEXT DEFAULT '[]',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chat_history_user_id ON chat_history (user_id);
`

// Store is the durable append-only turn log. Turns are created only via
// Append and destroyed only via Clear; there is no per-turn mutation.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "history")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one turn for the given user. The store assigns id and
// timestamp; citations may be nil and are stored as an empty list.
func (s *Store) Append(ctx context.Context, userID int64, role Role, content string, citations []string) error {
	if citations == nil {
		citations = []string{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, role, content, citations)
		VALUES (?, ?, ?, ?)`,
		userID, string(role), content, string(citationsJSON),
	)
	if err != nil {
		s.logger.Error("failed to append turn", "user", userID, "role", role, "err", err)
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns the last limit turns for a user in chronological order
// (oldest first).
func (s *Store) Recent(ctx context.Context, userID int64, limit int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, citations, created_at
		FROM chat_history
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; flip back to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// All returns the full chronological history for a user.
func (s *Store) All(ctx context.Context, userID int64) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, citations, created_at
		FROM chat_history
		WHERE user_id = ?
		ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query all turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// Clear removes every turn belonging to a user and returns how many were
// deleted.
func (s *Store) Clear(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_history WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted turns: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("history cleared", "user", userID, "deleted", deleted)
	}
	return deleted, nil
}

// Count returns the number of stored turns for a user.
func (s *Store) Count(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_history WHERE user_id = ?", userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var (
			t             Turn
			role          string
			citationsJSON string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Content, &citationsJSON, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		if err := json.Unmarshal([]byte(citationsJSON), &t.Citations); err != nil {
			// Malformed citations shouldn't make the whole history unreadable.
			t.Citations = nil
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
