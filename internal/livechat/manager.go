package livechat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/ChatBridge/internal/gateway"
	"github.com/BTreeMap/ChatBridge/internal/models"
	"github.com/BTreeMap/ChatBridge/internal/scheduler"
	"github.com/BTreeMap/ChatBridge/internal/transcript"
	"github.com/robfig/cron/v3"
)

// Gateway is the live-agent backend interface consumed by the manager
// (defined here so tests can substitute a fake without an HTTP server).
type Gateway interface {
	CreateCase(ctx context.Context, req gateway.CreateCaseRequest) (*gateway.CaseDetails, error)
	AgentWaitTime(ctx context.Context) (string, error)
	StartSession(ctx context.Context) (gateway.Session, error)
	Connect(ctx context.Context, req gateway.ConnectRequest) error
	GetMessage(ctx context.Context, session gateway.Session, targetLanguage string) (*models.PollResponse, error)
	SendMessage(ctx context.Context, req gateway.SendMessageRequest) error
	EndChat(ctx context.Context, session gateway.Session) error
	Translate(ctx context.Context, targetLanguage, message string) (string, error)
}

// HistoryProvider supplies the transcript so far for the connect payload.
type HistoryProvider interface {
	Messages() []models.Message
}

// BusySink receives the live-chat busy indicator (agent typing).
type BusySink interface {
	SetBusy(busy bool)
}

// Option configures a Manager.
type Option func(*Manager)

// WithScheduler installs the recurring-reminder scheduler.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

// WithBusySink installs the busy-indicator sink.
func WithBusySink(b BusySink) Option {
	return func(m *Manager) { m.busySink = b }
}

// Manager owns the live-chat session context: chat mode, status, the opaque
// session token and the collected profile. All transitions go through its
// methods; no other component mutates this state.
type Manager struct {
	cfg     Config
	gw      Gateway
	sink    transcript.Sink
	history HistoryProvider
	sched   *scheduler.Scheduler

	mu          sync.Mutex
	mode        models.ChatMode
	status      models.LiveChatStatus
	session     gateway.Session
	profile     models.LiveChatProfile
	verified    bool
	caseID      string
	contactID   string
	caseNumber  string
	reminderID  cron.EntryID
	hasReminder bool
	pollCancel  context.CancelFunc

	busySink BusySink
}

// NewManager creates a session manager in BOT mode, DISCONNECTED.
func NewManager(cfg Config, gw Gateway, sink transcript.Sink, history HistoryProvider, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		gw:      gw,
		sink:    sink,
		history: history,
		mode:    models.ChatModeBot,
		status:  models.LiveChatDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the current chat mode.
func (m *Manager) Mode() models.ChatMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Status returns the current live-chat status.
func (m *Manager) Status() models.LiveChatStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Profile returns a copy of the collected profile.
func (m *Manager) Profile() models.LiveChatProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// Connected reports whether a session token is held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

func (m *Manager) setStatus(s models.LiveChatStatus) {
	m.mu.Lock()
	prev := m.status
	m.status = s
	m.mu.Unlock()
	slog.Info("Manager.setStatus: live chat status transition", "from", prev, "to", s)
}

func (m *Manager) setMode(mode models.ChatMode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	slog.Debug("Manager.setMode: chat mode changed", "mode", mode)
}

// SetVerified records the user's answer to the wait-time verification
// question; the next RequestLiveChat acts on it.
func (m *Manager) SetVerified(ok bool) {
	m.mu.Lock()
	m.verified = ok
	m.mu.Unlock()
}

// StoreProfileAnswer stores a free-text reply against the profile field the
// current status is eliciting. Returns false when no field is pending.
func (m *Manager) StoreProfileAnswer(text string) bool {
	text = strings.TrimSpace(text)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.status {
	case models.LiveChatRequestFirstname:
		m.profile.FirstName = text
	case models.LiveChatRequestLastname:
		m.profile.LastName = text
	case models.LiveChatRequestEmail:
		m.profile.Email = text
	default:
		return false
	}
	slog.Debug("Manager.StoreProfileAnswer: profile field stored", "status", m.status)
	return true
}

// ApplyDialogStatus applies a status dictated by the dialog service's topic
// control channel. Only the dialog-driven values are accepted.
func (m *Manager) ApplyDialogStatus(s models.LiveChatStatus) {
	switch s {
	case models.LiveChatRequested, models.LiveChatInitializing,
		models.LiveChatEnteringTopic, models.LiveChatDisconnected:
		m.setStatus(s)
	default:
		slog.Warn("Manager.ApplyDialogStatus: refusing non-dialog status", "status", s)
	}
}

// RequestLiveChat drives the pre-session part of the state machine. Each
// call advances one step based on the current status, mirroring one user
// turn: verification question, profile prompts, then the topic prompt.
func (m *Manager) RequestLiveChat(ctx context.Context) error {
	status := m.Status()
	slog.Info("Manager.RequestLiveChat: advancing", "status", status)

	switch status {
	case models.LiveChatDisconnected:
		if err := m.validateConfig(); err != nil {
			return err
		}
		m.setMode(models.ChatModeLiveChat)
		waitTime, err := m.gw.AgentWaitTime(ctx)
		if err != nil {
			slog.Error("Manager.RequestLiveChat: wait time check failed", "error", err)
			m.setStatus(models.LiveChatDisconnected)
			m.setMode(models.ChatModeBot)
			return nil
		}
		m.setStatus(models.LiveChatVerified)
		m.sink.PushMessage(models.Message{
			Type: models.MessageTypeBot,
			Text: fmt.Sprintf("The wait time is currently %s, would you like to wait?", waitTime),
		})

	case models.LiveChatVerified:
		m.mu.Lock()
		verified := m.verified
		m.mu.Unlock()
		if !verified {
			m.sink.PushLiveChatMessage(models.Message{
				Type: models.MessageTypeBot,
				Text: m.cfg.DisconnectingMessage,
			})
			m.SessionEnded()
			return nil
		}
		if m.cfg.CollectProfile {
			m.setStatus(models.LiveChatRequestFirstname)
			m.prompt(m.cfg.PromptFirstName)
		} else {
			m.setStatus(models.LiveChatEnteringTopic)
			m.prompt(m.cfg.PromptTopic)
		}

	case models.LiveChatRequestFirstname:
		m.setStatus(models.LiveChatRequestLastname)
		m.prompt(m.cfg.PromptLastName)

	case models.LiveChatRequestLastname:
		m.setStatus(models.LiveChatRequestEmail)
		m.prompt(m.cfg.PromptEmail)

	case models.LiveChatRequestEmail:
		m.setStatus(models.LiveChatRequested)
		m.setMode(models.ChatModeLiveChat)
		m.setStatus(models.LiveChatEnteringTopic)
		m.prompt(m.cfg.PromptTopic)

	default:
		slog.Debug("Manager.RequestLiveChat: nothing to advance", "status", status)
	}
	return nil
}

func (m *Manager) prompt(text string) {
	m.sink.PushMessage(models.Message{Type: models.MessageTypeBot, Text: text})
}

func (m *Manager) validateConfig() error {
	if !m.cfg.Enabled {
		slog.Error("Manager.validateConfig: live chat disabled")
		return ErrLiveChatDisabled
	}
	if m.cfg.Endpoint == "" {
		slog.Error("Manager.validateConfig: endpoint not set")
		return ErrEndpointNotSet
	}
	return nil
}

// StartLiveChat runs the session creation protocol: case creation with the
// collected profile and subject, translated confirmation and waiting
// messages, reminder arming, session start, connect, then the poll loop.
// Any step failing resets to DISCONNECTED and swallows the error; the chat
// attempt silently aborts.
func (m *Manager) StartLiveChat(ctx context.Context, subject string) error {
	if err := m.validateConfig(); err != nil {
		return err
	}

	m.setMode(models.ChatModeLiveChat)
	m.setStatus(models.LiveChatCreatingCase)

	if err := m.establish(ctx, subject); err != nil {
		slog.Error("Manager.StartLiveChat: error establishing live chat", "error", err)
		m.SessionEnded()
		return nil
	}
	return nil
}

func (m *Manager) establish(ctx context.Context, subject string) error {
	profile := m.Profile()
	details, err := m.gw.CreateCase(ctx, gateway.CreateCaseRequest{
		FirstName:       profile.FirstName,
		LastName:        profile.LastName,
		Email:           profile.Email,
		Language:        m.cfg.SourceLanguage,
		PhoneNumber:     profile.Phone,
		CaseDescription: subject,
		CaseSubject:     subject,
	})
	if err != nil {
		return fmt.Errorf("case creation failed: %w", err)
	}

	m.mu.Lock()
	m.caseID = details.CaseID
	m.contactID = details.ContactID
	m.caseNumber = details.CaseNumber
	m.mu.Unlock()

	m.setStatus(models.LiveChatConnecting)

	if err := m.translateAndPush(ctx, fmt.Sprintf(m.cfg.ConfirmationMessage, details.CaseNumber)); err != nil {
		return err
	}
	if err := m.translateAndPush(ctx, m.cfg.WaitingMessage); err != nil {
		return err
	}
	m.armWaitingReminder(ctx)

	session, err := m.gw.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("session start failed: %w", err)
	}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.startPolling(ctx)

	if err := m.gw.Connect(ctx, gateway.ConnectRequest{
		Session:     session,
		ChatHistory: m.history.Messages(),
		Username:    profile.DisplayName(),
		CaseID:      details.CaseID,
		ContactID:   details.ContactID,
	}); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	m.setStatus(models.LiveChatEstablished)
	slog.Info("Manager.establish: live chat session connected", "caseNumber", details.CaseNumber)
	return nil
}

// translateAndPush translates a message into the UI language and pushes it.
func (m *Manager) translateAndPush(ctx context.Context, text string) error {
	translated, err := m.gw.Translate(ctx, m.cfg.SourceLanguage, text)
	if err != nil {
		return fmt.Errorf("translate failed: %w", err)
	}
	m.sink.PushLiveChatMessage(models.Message{
		Type:     models.MessageTypeBot,
		Text:     translated,
		Language: m.cfg.SourceLanguage,
	})
	return nil
}

// armWaitingReminder re-pushes the waiting message at the configured
// interval until an agent joins. Arming replaces any previous reminder.
func (m *Manager) armWaitingReminder(ctx context.Context) {
	if m.sched == nil || m.cfg.WaitingReminderInterval <= 0 {
		return
	}
	m.clearWaitingReminder()

	id, err := m.sched.AddEvery(m.cfg.WaitingReminderInterval, func() {
		translated, err := m.gw.Translate(ctx, m.cfg.SourceLanguage, m.cfg.WaitingMessage)
		if err != nil {
			translated = m.cfg.WaitingMessage
		}
		m.sink.PushLiveChatMessage(models.Message{Type: models.MessageTypeBot, Text: translated})
	})
	if err != nil {
		slog.Warn("Manager.armWaitingReminder: failed to schedule reminder", "error", err)
		return
	}
	m.mu.Lock()
	m.reminderID = id
	m.hasReminder = true
	m.mu.Unlock()
	slog.Debug("Manager.armWaitingReminder: reminder armed", "interval", m.cfg.WaitingReminderInterval)
}

func (m *Manager) clearWaitingReminder() {
	m.mu.Lock()
	id, has := m.reminderID, m.hasReminder
	m.hasReminder = false
	m.mu.Unlock()
	if has && m.sched != nil {
		m.sched.Remove(id)
		slog.Debug("Manager.clearWaitingReminder: reminder cleared")
	}
}

// AgentJoined marks the agent as present, clearing the waiting reminder.
func (m *Manager) AgentJoined() {
	m.clearWaitingReminder()
	m.setBusy(false)
}

func (m *Manager) setBusy(busy bool) {
	if m.busySink != nil {
		m.busySink.SetBusy(busy)
	}
}

// SendChatMessage relays one user message to the agent. Requires LIVECHAT
// mode and ESTABLISHED status; on success the message is also pushed locally
// as a human transcript entry.
func (m *Manager) SendChatMessage(ctx context.Context, text string) error {
	m.mu.Lock()
	session := m.session
	mode, status := m.mode, m.status
	m.mu.Unlock()

	if mode != models.ChatModeLiveChat || status != models.LiveChatEstablished || session == nil {
		return fmt.Errorf("live chat not established (status %s)", status)
	}

	err := m.gw.SendMessage(ctx, gateway.SendMessageRequest{
		Message:        text,
		Session:        session,
		SourceLanguage: m.cfg.SourceLanguage,
		TargetLanguage: m.cfg.TargetLanguage,
	})
	if err != nil {
		slog.Error("Manager.SendChatMessage: send failed", "error", err)
		return fmt.Errorf("failed to send chat message: %w", err)
	}

	m.sink.PushLiveChatMessage(models.Message{Type: models.MessageTypeHuman, Text: text})
	return nil
}

// SendTypingEvent forwards a typing notification while in live chat. The
// backend has no endpoint for it yet, so it only logs.
func (m *Manager) SendTypingEvent() {
	if m.Mode() == models.ChatModeLiveChat && m.Connected() {
		slog.Debug("Manager.SendTypingEvent: user is typing")
	}
}

// RequestLiveChatEnd ends the chat from the user's side: notifies the
// backend, pushes the closing message and resets all session state. Calling
// it while already disconnected is a no-op.
func (m *Manager) RequestLiveChatEnd(ctx context.Context) {
	m.clearWaitingReminder()

	m.mu.Lock()
	session := m.session
	mode := m.mode
	m.mu.Unlock()

	if mode != models.ChatModeLiveChat || session == nil {
		slog.Debug("Manager.RequestLiveChatEnd: no active session")
		m.SessionEnded()
		return
	}

	if err := m.gw.EndChat(ctx, session); err != nil {
		slog.Error("Manager.RequestLiveChatEnd: endChat failed", "error", err)
	} else {
		m.sink.PushLiveChatMessage(models.Message{
			Type: models.MessageTypeBot,
			Text: m.cfg.SessionEndedMessage,
		})
	}
	m.SessionEnded()
}

// SessionEnded resets the session context: token invalidated, profile
// cleared, status DISCONNECTED, mode back to BOT, reminder and poll loop
// cancelled.
func (m *Manager) SessionEnded() {
	m.clearWaitingReminder()

	m.mu.Lock()
	m.session = nil
	m.profile = models.LiveChatProfile{}
	m.verified = false
	m.caseID = ""
	m.contactID = ""
	m.caseNumber = ""
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mode = models.ChatModeBot
	prev := m.status
	m.status = models.LiveChatDisconnected
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.setBusy(false)
	slog.Info("Manager.SessionEnded: live chat session ended", "from", prev)
}

// ResetLiveChat clears live-chat state silently (start-over flows). Unlike
// SessionEnded it never touches the backend or pushes messages.
func (m *Manager) ResetLiveChat() {
	slog.Debug("Manager.ResetLiveChat: clearing live chat state")
	m.SessionEnded()
}
