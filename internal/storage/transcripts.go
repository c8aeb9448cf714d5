// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrClosed          = errors.New("archive closed")
)

// =============================================================================
// TYPES
// =============================================================================

// SessionMeta summarizes one archived session for listing.
type SessionMeta struct {
	ID           string
	Summary      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// DefaultMaxSessions bounds how many sessions are kept.
const DefaultMaxSessions = 100

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	summary    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	sender        TEXT NOT NULL,
	text          TEXT NOT NULL,
	is_error      INTEGER NOT NULL DEFAULT 0,
	response_type TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is the transcript database. It is safe for concurrent use.
type Archive struct {
	db *sql.DB

	// MaxSessions limits stored sessions (0 = unlimited).
	MaxSessions int

	mu     sync.Mutex
	closed bool
}

// DefaultPath returns ~/.taskmaster/transcripts.db.
func DefaultPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcripts.db"), nil
}

// PathFrom returns the configured transcript path or the default.
func PathFrom(cfg config.StorageConfig) (string, error) {
	if p := strings.TrimSpace(cfg.TranscriptPath); p != "" {
		return p, nil
	}
	return DefaultPath()
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db, MaxSessions: DefaultMaxSessions}, nil
}

// Close closes the database. It is safe to call more than once.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func (a *Archive) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Record stores msg under its session. Recording the same message id twice
// is a no-op. The first user message of a session becomes its summary.
func (a *Archive) Record(ctx context.Context, msg model.Message) error {
	if err := a.check(); err != nil {
		return err
	}
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = "unsorted"
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	at := ts.UnixMilli()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, summary, created_at, updated_at) VALUES (?, '', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = MAX(updated_at, excluded.updated_at)`,
		sessionID, at, at); err != nil {
		return fmt.Errorf("record session: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, session_id, sender, text, is_error, response_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, string(msg.Sender), msg.Text, boolInt(msg.IsError), msg.ResponseType, at)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 && msg.IsUser() {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET summary = ? WHERE id = ? AND summary = ''`,
			summarize(msg.Text), sessionID); err != nil {
			return fmt.Errorf("record summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record message: %w", err)
	}

	if a.MaxSessions > 0 {
		a.enforceLimit(ctx)
	}
	return nil
}

// summarize creates a one-line summary from the first user message.
func summarize(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", " ")
	return util.TruncateRunes(strings.TrimSpace(text), 50)
}

// enforceLimit removes the oldest sessions past MaxSessions.
func (a *Archive) enforceLimit(ctx context.Context) {
	_, _ = a.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, a.MaxSessions)
}

// Delete removes a session and its messages.
func (a *Archive) Delete(ctx context.Context, sessionID string) error {
	if err := a.check(); err != nil {
		return err
	}
	res, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Sessions lists archived sessions, most recent first.
func (a *Archive) Sessions(ctx context.Context) ([]SessionMeta, error) {
	return a.querySessions(ctx,
		`SELECT s.id, s.summary, s.created_at, s.updated_at, COUNT(m.id)
		 FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		 GROUP BY s.id ORDER BY s.updated_at DESC`)
}

// Search finds sessions with a message containing query, most recent first.
func (a *Archive) Search(ctx context.Context, query string) ([]SessionMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return a.Sessions(ctx)
	}
	pattern := "%" + escapeLike(query) + "%"
	return a.querySessions(ctx,
		`SELECT s.id, s.summary, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM messages c WHERE c.session_id = s.id)
		 FROM sessions s
		 WHERE s.summary LIKE ? ESCAPE '\'
		    OR EXISTS (SELECT 1 FROM messages m WHERE m.session_id = s.id AND m.text LIKE ? ESCAPE '\')
		 ORDER BY s.updated_at DESC`, pattern, pattern)
}

// SessionByIndex returns the session at index in Sessions order
// (0 = most recent).
func (a *Archive) SessionByIndex(ctx context.Context, index int) (SessionMeta, error) {
	metas, err := a.Sessions(ctx)
	if err != nil {
		return SessionMeta{}, err
	}
	if index < 0 || index >= len(metas) {
		return SessionMeta{}, ErrSessionNotFound
	}
	return metas[index], nil
}

// Messages returns the messages of a session, oldest first.
func (a *Archive) Messages(ctx context.Context, sessionID string) ([]model.Message, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, sender, text, is_error, response_type, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			msg     model.Message
			sender  string
			isError int
			at      int64
		)
		if err := rows.Scan(&msg.ID, &sender, &msg.Text, &isError, &msg.ResponseType, &at); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Sender = model.Sender(sender)
		msg.IsError = isError != 0
		msg.Timestamp = time.UnixMilli(at)
		msg.SessionID = sessionID
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var exists int
		err := a.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
	}
	return out, nil
}

func (a *Archive) querySessions(ctx context.Context, query string, args ...any) ([]SessionMeta, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var (
			m                SessionMeta
			created, updated int64
		)
		if err := rows.Scan(&m.ID, &m.Summary, &created, &updated, &m.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		m.UpdatedAt = time.UnixMilli(updated)
		if m.Summary == "" {
			m.Summary = "New conversation"
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
