// Package store persists the studio state in a local SQLite database. The
// whole state lives in one versioned document row; saves replace it
// wholesale, matching the engine's replace-not-merge update model.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/project"
)

const schema = `
CREATE TABLE IF NOT EXISTS studio_state (
	key        TEXT NOT NULL,
	version    INTEGER NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (key, version)
);
`

const (
	stateKey     = "studio"
	stateVersion = 1
)

// Store owns the studio database connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the studio database under dir and runs migrations.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "studio.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open studio db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate studio db: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the persisted state, or a fresh empty state when none exists.
// A document that no longer parses is dropped rather than wedging startup;
// the studio then begins from an empty workspace list.
func (s *Store) Load() (*project.State, error) {
	var doc string
	err := s.db.QueryRow(
		`SELECT doc FROM studio_state WHERE key = ? AND version = ?`,
		stateKey, stateVersion,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return &project.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var state project.State
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		s.logger.Warn("store.state_corrupt", "error", err.Error())
		if _, derr := s.db.Exec(
			`DELETE FROM studio_state WHERE key = ? AND version = ?`,
			stateKey, stateVersion,
		); derr != nil {
			return nil, fmt.Errorf("drop corrupt state: %w", derr)
		}
		return &project.State{}, nil
	}
	return &state, nil
}

// Save replaces the persisted state document.
func (s *Store) Save(state *project.State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO studio_state (key, version, doc, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (key, version) DO UPDATE SET
		   doc = excluded.doc, updated_at = excluded.updated_at`,
		stateKey, stateVersion, string(doc),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
