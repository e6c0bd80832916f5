// Package store provides transcript persistence backends for ChatBridge.
//
// It includes an in-memory store used in tests and as the default, plus
// SQLite and PostgreSQL backends for widget deployments that keep transcript
// history across reloads.
package store

import (
	"sync"

	"github.com/BTreeMap/ChatBridge/internal/models"
)

// Option configures a store backend.
type Option func(*Opts)

// Opts holds store configuration.
type Opts struct {
	DSN string
}

// WithDSN sets the database DSN (file path for SQLite, connection string for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store persists the append-only transcript.
type Store interface {
	// SaveMessage appends one transcript message.
	SaveMessage(msg models.Message) error

	// Messages returns all persisted messages in append order.
	Messages() ([]models.Message, error)

	// Clear removes all persisted messages (chat reset).
	Clear() error

	// Close releases backend resources.
	Close() error
}

// InMemoryStore is a simple in-memory transcript store.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages []models.Message
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// SaveMessage appends one message.
func (s *InMemoryStore) SaveMessage(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of all messages in append order.
func (s *InMemoryStore) Messages() ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

// Clear removes all messages.
func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
