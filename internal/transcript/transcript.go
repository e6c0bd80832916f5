// Package transcript provides the message sink: the append-only transcript
// visible to the user, plus the side effects that fire when a message lands.
package transcript

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ChatBridge/internal/models"
	"github.com/BTreeMap/ChatBridge/internal/store"
	"github.com/google/uuid"
)

// Sink receives transcript messages from the orchestrator and session manager.
type Sink interface {
	// PushMessage appends a message produced by the bot path.
	PushMessage(msg models.Message)

	// PushLiveChatMessage appends a message produced by the live-chat path.
	PushLiveChatMessage(msg models.Message)
}

// Notifier is invoked after each appended message so hosts can play sounds
// or notify a parent window. It must not block.
type Notifier func(event string, msg models.Message)

// Notifier event names.
const (
	EventMessagePushed  = "messagePushed"
	EventLiveChatPushed = "liveChatMessagePushed"
)

// Synthesizer is the text-to-speech collaborator. Implementations return
// encoded audio for a message body.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Option configures a Transcript.
type Option func(*Transcript)

// WithStore persists every appended message through the given store.
func WithStore(st store.Store) Option {
	return func(t *Transcript) { t.store = st }
}

// WithNotifier installs the side-effect hook.
func WithNotifier(n Notifier) Option {
	return func(t *Transcript) { t.notifier = n }
}

// WithSynthesizer enables text-to-speech for bot messages.
func WithSynthesizer(s Synthesizer) Option {
	return func(t *Transcript) { t.synthesizer = s }
}

// Transcript is the append-only ordered message sequence.
type Transcript struct {
	mu          sync.RWMutex
	messages    []models.Message
	busy        bool
	store       store.Store
	notifier    Notifier
	synthesizer Synthesizer
}

// New creates an empty transcript.
func New(opts ...Option) *Transcript {
	t := &Transcript{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PushMessage appends a message from the bot path. Alternate renderings are
// attached only by callers (custom payloads, rewritten agent text); plain
// messages carry none.
func (t *Transcript) PushMessage(msg models.Message) {
	t.push(EventMessagePushed, msg)
	if t.synthesizer != nil && msg.Type == models.MessageTypeBot {
		if _, err := t.synthesizer.Synthesize(context.Background(), msg.Text); err != nil {
			slog.Warn("Transcript.PushMessage: speech synthesis failed", "error", err)
		}
	}
}

// PushLiveChatMessage appends a message from the live-chat path.
func (t *Transcript) PushLiveChatMessage(msg models.Message) {
	t.push(EventLiveChatPushed, msg)
}

func (t *Transcript) push(event string, msg models.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	slog.Debug("Transcript.push: message appended", "type", msg.Type, "textLength", len(msg.Text))

	if t.store != nil {
		if err := t.store.SaveMessage(msg); err != nil {
			slog.Warn("Transcript.push: failed to persist message", "error", err)
		}
	}
	if t.notifier != nil {
		t.notifier(event, msg)
	}
}

// Messages returns a copy of the transcript in append order.
func (t *Transcript) Messages() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of appended messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, if any.
func (t *Transcript) Last() (models.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return models.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Clear removes all messages (chat reset).
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
	if t.store != nil {
		if err := t.store.Clear(); err != nil {
			slog.Warn("Transcript.Clear: failed to clear persisted transcript", "error", err)
		}
	}
}

// SetBusy toggles the live-chat busy indicator (agent typing).
func (t *Transcript) SetBusy(busy bool) {
	t.mu.Lock()
	t.busy = busy
	t.mu.Unlock()
}

// Busy reports the live-chat busy indicator.
func (t *Transcript) Busy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.busy
}
