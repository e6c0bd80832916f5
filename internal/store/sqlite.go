// Package store provides transcript persistence backends for ChatBridge.
//
// This file implements an SQLite-backed transcript store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BTreeMap/ChatBridge/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcript (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	text TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL
);
`

// SQLiteStore persists the transcript in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path to the
// database file; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		slog.Error("SQLite schema setup failed", "error", err)
		return nil, fmt.Errorf("failed to initialize transcript schema: %w", err)
	}

	slog.Debug("SQLiteStore ready")
	return &SQLiteStore{db: db}, nil
}

// SaveMessage appends one transcript message.
func (s *SQLiteStore) SaveMessage(msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO transcript (id, type, text, language, payload) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Type), msg.Text, msg.Language, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript message: %w", err)
	}
	return nil
}

// Messages returns all persisted messages in append order.
func (s *SQLiteStore) Messages() ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT payload FROM transcript ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			slog.Warn("SQLiteStore: skipping malformed transcript row", "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Clear removes all persisted messages.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM transcript`); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
