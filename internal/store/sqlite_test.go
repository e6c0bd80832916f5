package store

import (
	"path/filepath"
	"testing"

	"github.com/BTreeMap/ChatBridge/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "transcript.db")
	st, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)

	msg := models.Message{
		ID:       "m-1",
		Type:     models.MessageTypeAgent,
		Text:     "hello from agent",
		Language: "en",
		Alts:     &models.AltRenderings{Markdown: "hello from agent"},
	}
	if err := st.SaveMessage(msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, err := st.Messages()
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1", len(msgs))
	}
	got := msgs[0]
	if got.ID != msg.ID || got.Type != msg.Type || got.Text != msg.Text || got.Language != msg.Language {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, msg)
	}
	if got.Alts == nil || got.Alts.Markdown != msg.Alts.Markdown {
		t.Errorf("payload not restored: %+v", got.Alts)
	}
}

func TestSQLiteStoreClear(t *testing.T) {
	st := newTestSQLiteStore(t)

	if err := st.SaveMessage(models.Message{ID: "m-1", Type: models.MessageTypeBot, Text: "x"}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if err := st.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	msgs, err := st.Messages()
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty store after clear, got %d", len(msgs))
	}
}
