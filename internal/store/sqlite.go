// Package store persists agent session history for the development agent
// backend.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/inmobiliaria/gestion-chat/internal/model"
)

// ErrEmptySession is returned when a message carries no session id.
var ErrEmptySession = errors.New("store: session id is required")

// HistoryStore keeps the turns of every agent session.
type HistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path. ":memory:" keeps the
// history in process.
func Open(path string) (*HistoryStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer avoids SQLITE_BUSY and keeps :memory: a single database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &HistoryStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *HistoryStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		agent TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, agent, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// AppendMessages stores msgs in order in one transaction, creating the
// session for owner on first use.
func (s *HistoryStore) AppendMessages(ctx context.Context, owner string, msgs ...model.StoredMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UnixMilli()
	touched := make(map[string]bool, 1)
	for _, m := range msgs {
		if m.SessionID == "" {
			return ErrEmptySession
		}
		if !touched[m.SessionID] {
			touched[m.SessionID] = true
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sessions (session_id, owner, created_at, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
				m.SessionID, owner, now, now)
			if err != nil {
				return fmt.Errorf("upsert session: %w", err)
			}
		}

		createdAt := m.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, agent, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			m.SessionID, m.Agent, string(m.Role), m.Content, createdAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// History returns at most limit of the latest messages of a session for one
// agent, oldest first. The window always opens on a user message, so replies
// cut off from their prompt are dropped. A limit of 0 returns nothing.
func (s *HistoryStore) History(ctx context.Context, sessionID, agent string, limit int) ([]model.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, agent, role, content, created_at FROM (
			SELECT * FROM messages
			WHERE session_id = ? AND agent = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionID, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.StoredMessage
	for rows.Next() {
		var m model.StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Agent, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = model.Role(role)
		if len(out) == 0 && m.Role != model.RoleUser {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Owner returns the user who created a session, or "" when it is unknown.
func (s *HistoryStore) Owner(ctx context.Context, sessionID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM sessions WHERE session_id = ?`, sessionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query session owner: %w", err)
	}
	return owner, nil
}
