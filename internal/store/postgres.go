// Package store provides transcript persistence backends for ChatBridge.
//
// This file implements a PostgreSQL-backed transcript store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ChatBridge/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transcript (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	text TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	payload JSONB NOT NULL
);
`

// PostgresStore persists the transcript in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		slog.Error("Postgres schema setup failed", "error", err)
		return nil, fmt.Errorf("failed to initialize transcript schema: %w", err)
	}

	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// SaveMessage appends one transcript message.
func (s *PostgresStore) SaveMessage(msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO transcript (id, type, text, language, payload) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, string(msg.Type), msg.Text, msg.Language, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript message: %w", err)
	}
	return nil
}

// Messages returns all persisted messages in append order.
func (s *PostgresStore) Messages() ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT payload FROM transcript ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Warn("PostgresStore: skipping malformed transcript row", "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Clear removes all persisted messages.
func (s *PostgresStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM transcript`); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error { return s.db.Close() }
