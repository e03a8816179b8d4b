package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kpapadakis/ledgerdesk/internal/config"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id          TEXT PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			type        TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS vendors (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			contact_name TEXT,
			email        TEXT,
			phone        TEXT,
			address      TEXT,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vendors_name ON vendors(name)`,
		`CREATE TABLE IF NOT EXISTS bills (
			id          TEXT PRIMARY KEY,
			vendor_id   TEXT NOT NULL REFERENCES vendors(id),
			bill_number TEXT,
			amount      TEXT NOT NULL,
			due_date    TEXT,
			memo        TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS journals (
			id          TEXT PRIMARY KEY,
			date        TEXT NOT NULL,
			memo        TEXT,
			type_code   TEXT NOT NULL,
			posted      BOOLEAN DEFAULT FALSE,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS journal_lines (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			journal_id  TEXT NOT NULL REFERENCES journals(id),
			account_id  TEXT NOT NULL REFERENCES accounts(id),
			debit       TEXT NOT NULL,
			credit      TEXT NOT NULL,
			description TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lines_journal ON journal_lines(journal_id)`,
		`CREATE TABLE IF NOT EXISTS agent_messages (
			id               TEXT PRIMARY KEY,
			sender           TEXT NOT NULL,
			recipient        TEXT NOT NULL,
			action           TEXT NOT NULL,
			payload          TEXT,
			user_id          TEXT NOT NULL,
			priority         TEXT DEFAULT 'NORMAL',
			conversation_key TEXT,
			status           TEXT DEFAULT 'PENDING',
			response_payload TEXT,
			response_text    TEXT,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON agent_messages(recipient, status)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			action_type TEXT NOT NULL,
			entity_id   TEXT,
			status      TEXT NOT NULL,
			detail      TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
