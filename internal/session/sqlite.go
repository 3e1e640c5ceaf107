package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions in a SQLite database. Session state is
// stored as a JSON document keyed by ID; the activity timestamp is a
// separate column so expiry sweeps stay index-backed, and expiry sets a
// flag rather than deleting the row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and runs
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_active DATETIME NOT NULL,
		expired INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Databases created before the expired column gain it here.
	if _, err := s.db.Exec(`ALTER TABLE sessions ADD COLUMN expired INTEGER NOT NULL DEFAULT 0`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}

// Load returns the session for an ID.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	var (
		state   string
		expired bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state, expired FROM sessions WHERE id = ?`, id).Scan(&state, &expired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if expired {
		return nil, ErrExpired
	}

	var sess Session
	if err := json.Unmarshal([]byte(state), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save upserts the session, clearing any expiry mark.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, state, created_at, last_active, expired)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			last_active = excluded.last_active,
			expired = 0`,
		sess.ID, string(state), sess.CreatedAt.UTC(), sess.LastActive.UTC())
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Expire marks a session expired, keeping its row.
func (s *SQLiteStore) Expire(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET expired = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("expire session %s: %w", id, err)
	}
	return nil
}

// Delete removes a session row.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ExpireBefore marks sessions last active before the cutoff as expired.
func (s *SQLiteStore) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET expired = 1 WHERE last_active < ? AND expired = 0`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
