// Package conversation implements the orchestrator that routes each inbound
// user message to exactly one of the dialog service, the live-chat relay, or
// a local status prompt, and owns the idle and connectivity-loss timers.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ChatBridge/internal/dialog"
	"github.com/BTreeMap/ChatBridge/internal/models"
	"github.com/BTreeMap/ChatBridge/internal/timer"
	"github.com/BTreeMap/ChatBridge/internal/transcript"
)

// SessionManager is the live-chat state machine consumed by the orchestrator.
type SessionManager interface {
	Mode() models.ChatMode
	Status() models.LiveChatStatus
	Profile() models.LiveChatProfile
	SetVerified(ok bool)
	StoreProfileAnswer(text string) bool
	ApplyDialogStatus(s models.LiveChatStatus)
	RequestLiveChat(ctx context.Context) error
	StartLiveChat(ctx context.Context, subject string) error
	SendChatMessage(ctx context.Context, text string) error
	SendTypingEvent()
	RequestLiveChatEnd(ctx context.Context)
	ResetLiveChat()
}

// Translator renders user-facing text in the current UI language. The
// live-agent gateway client satisfies it.
type Translator interface {
	Translate(ctx context.Context, targetLanguage, message string) (string, error)
}

// timeoutMarker is the vendor-specific substring identifying a dialog
// service timeout in an error message.
const timeoutMarker = "permissible time"

// welcomeMarker is the reserved inbound text that triggers the greeting and
// counts as user activity.
const welcomeMarker = "Welcome"

// Config holds orchestrator behavior settings.
type Config struct {
	// LocaleID is the dialog locale for postText calls.
	LocaleID string

	// IdleTimeout ends the chat after this much user inactivity.
	IdleTimeout time.Duration

	// ConnectivityBudget is how long the device may stay offline before the
	// chat is force-ended. ConnectivityTick is the countdown granularity.
	ConnectivityBudget time.Duration
	ConnectivityTick   time.Duration

	// RetryOnTimeout enables one bounded retry of a dialog post whose error
	// carries the vendor timeout marker. RetryCeiling caps retries per
	// conversation turn.
	RetryOnTimeout bool
	RetryCeiling   int

	// LiveChatTriggers are utterances that start the live-chat flow while
	// in bot mode. Matched case-insensitively against the whole message.
	LiveChatTriggers []string

	// User-facing messages.
	WelcomeMessage        string
	ErrorMessage          string
	TimeoutMessage        string
	ConnectionLostMessage string
}

// DefaultConfig returns the stock orchestrator settings.
func DefaultConfig() Config {
	return Config{
		LocaleID:              "en_US",
		IdleTimeout:           600 * time.Second,
		ConnectivityBudget:    40 * time.Second,
		ConnectivityTick:      time.Second,
		RetryOnTimeout:        true,
		RetryCeiling:          1,
		LiveChatTriggers:      []string{"live chat", "livechat", "agent"},
		WelcomeMessage:        "Hello! How can I help you today?",
		ErrorMessage:          "Sorry, something went wrong. Please try again.",
		TimeoutMessage:        "Your session ended due to inactivity.",
		ConnectionLostMessage: "Connection lost, ending the chat session.",
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTranslator installs the translator used for language changes.
func WithTranslator(t Translator) Option {
	return func(o *Orchestrator) { o.translator = t }
}

// WithTimer overrides the timer implementation.
func WithTimer(t *timer.SimpleTimer) Option {
	return func(o *Orchestrator) { o.timers = t }
}

// Orchestrator routes inbound messages and manages liveness timers. All
// mutations of live-chat status go through the session manager's transition
// methods; the orchestrator never sets status directly.
type Orchestrator struct {
	cfg        Config
	dialog     dialog.Client
	manager    SessionManager
	sink       transcript.Sink
	translator Translator
	timers     *timer.SimpleTimer

	mu         sync.Mutex
	attrs      map[string]string
	locale     string
	online     bool
	pending    *models.Message
	idleID     string
	connID     string
	retryCount int

	startOverInFlight bool
}

// NewOrchestrator creates an orchestrator. The device is assumed online.
func NewOrchestrator(cfg Config, dc dialog.Client, mgr SessionManager, sink transcript.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		dialog:  dc,
		manager: mgr,
		sink:    sink,
		timers:  timer.NewSimpleTimer(),
		attrs:   make(map[string]string),
		locale:  cfg.LocaleID,
		online:  true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionAttributes returns a copy of the round-tripped attribute bag.
func (o *Orchestrator) SessionAttributes() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.attrs))
	for k, v := range o.attrs {
		out[k] = v
	}
	return out
}

// PostTextMessage routes one inbound user message. Routing precedence:
// offline suspension, timer re-arm, topic capture, live-chat relay, local
// status prompts, then the dialog service.
func (o *Orchestrator) PostTextMessage(ctx context.Context, msg models.Message) error {
	o.mu.Lock()
	if !o.online {
		o.pending = &msg
		o.mu.Unlock()
		slog.Info("Orchestrator.PostTextMessage: device offline, message suspended")
		o.armConnectivityTimer()
		return nil
	}
	o.mu.Unlock()

	if qualifiesForIdleReset(msg) {
		o.armIdleTimer()
	}

	text := strings.TrimSpace(msg.Text)
	status := o.manager.Status()

	if status == models.LiveChatEnteringTopic {
		if containsStartOver(text) {
			slog.Info("Orchestrator.PostTextMessage: start over during topic entry")
			o.manager.ResetLiveChat()
			// Falls through to normal dialog routing.
		} else {
			o.sink.PushMessage(models.Message{Type: models.MessageTypeHuman, Text: text})
			return o.manager.StartLiveChat(ctx, text)
		}
	}

	if o.manager.Mode() == models.ChatModeLiveChat && o.manager.Status() == models.LiveChatEstablished {
		if err := o.manager.SendChatMessage(ctx, text); err != nil {
			slog.Error("Orchestrator.PostTextMessage: live chat relay failed", "error", err)
			o.sink.PushMessage(models.Message{Type: models.MessageTypeBot, Text: o.cfg.ErrorMessage})
		}
		return nil
	}

	switch o.manager.Status() {
	case models.LiveChatVerified:
		o.sink.PushMessage(models.Message{Type: models.MessageTypeHuman, Text: text})
		o.manager.SetVerified(isAffirmative(text))
		return o.manager.RequestLiveChat(ctx)

	case models.LiveChatRequestFirstname, models.LiveChatRequestLastname, models.LiveChatRequestEmail:
		o.sink.PushMessage(models.Message{Type: models.MessageTypeHuman, Text: text})
		o.manager.StoreProfileAnswer(text)
		return o.manager.RequestLiveChat(ctx)
	}

	if o.manager.Mode() == models.ChatModeBot && o.isLiveChatTrigger(text) {
		o.sink.PushMessage(models.Message{Type: models.MessageTypeHuman, Text: text})
		if err := o.manager.RequestLiveChat(ctx); err != nil {
			slog.Warn("Orchestrator.PostTextMessage: live chat unavailable, routing to dialog", "error", err)
			return o.postDialog(ctx, msg, false)
		}
		return nil
	}

	if msg.Type != models.MessageTypeButton || text != welcomeMarker {
		o.sink.PushMessage(models.Message{Type: msg.Type, Text: text})
	}
	return o.postDialog(ctx, msg, false)
}

// postDialog sends one utterance to the dialog service and interprets the
// response. When the error carries the vendor timeout marker the post is
// re-issued once, flagged as a retry so the user message is not re-pushed.
func (o *Orchestrator) postDialog(ctx context.Context, msg models.Message, isRetry bool) error {
	attrs := o.SessionAttributes()
	if o.manager.Status() == models.LiveChatRequested {
		for k, v := range o.manager.Profile().Attributes() {
			attrs[k] = v
		}
	}

	o.mu.Lock()
	locale := o.locale
	o.mu.Unlock()

	resp, err := o.dialog.PostText(ctx, msg.Text, locale, attrs)
	if err != nil {
		o.mu.Lock()
		canRetry := o.cfg.RetryOnTimeout && o.retryCount < o.cfg.RetryCeiling &&
			strings.Contains(err.Error(), timeoutMarker)
		if canRetry {
			o.retryCount++
		}
		o.mu.Unlock()

		if canRetry {
			slog.Warn("Orchestrator.postDialog: dialog timeout, retrying", "retry", isRetry, "error", err)
			return o.postDialog(ctx, msg, true)
		}
		slog.Error("Orchestrator.postDialog: dialog post failed", "error", err)
		o.sink.PushMessage(models.Message{Type: models.MessageTypeBot, Text: o.cfg.ErrorMessage})
		o.mu.Lock()
		o.retryCount = 0
		o.mu.Unlock()
		return nil
	}

	o.mu.Lock()
	o.retryCount = 0
	o.attrs = resp.SessionAttributes
	o.mu.Unlock()

	return o.interpretDialogResponse(ctx, resp)
}

// SendTypingEvent forwards a user typing notification.
func (o *Orchestrator) SendTypingEvent() {
	o.manager.SendTypingEvent()
}

// SetOnline reports a device connectivity change. Going offline arms the
// connectivity-loss countdown; coming back online within the budget cancels
// it and re-dispatches the suspended message, if any.
func (o *Orchestrator) SetOnline(ctx context.Context, online bool) {
	o.mu.Lock()
	o.online = online
	var pending *models.Message
	if online {
		o.timers.Cancel(o.connID)
		o.connID = ""
		pending = o.pending
		o.pending = nil
	}
	o.mu.Unlock()

	slog.Info("Orchestrator.SetOnline: connectivity changed", "online", online)
	if !online {
		o.armConnectivityTimer()
		return
	}
	if pending != nil {
		if err := o.PostTextMessage(ctx, *pending); err != nil {
			slog.Error("Orchestrator.SetOnline: failed to re-dispatch suspended message", "error", err)
		}
	}
}

// ResetHistory clears live-chat state and greets the user again.
func (o *Orchestrator) ResetHistory() {
	o.manager.ResetLiveChat()
	o.mu.Lock()
	o.attrs = make(map[string]string)
	o.mu.Unlock()
	if o.cfg.WelcomeMessage != "" {
		o.sink.PushMessage(models.Message{Type: models.MessageTypeBot, Text: o.cfg.WelcomeMessage})
	}
}

// ForceEndChat terminates any live-chat session with the given user-facing
// message. Used by timer expiry and host-initiated shutdown.
func (o *Orchestrator) ForceEndChat(ctx context.Context, text string) {
	o.mu.Lock()
	o.timers.Cancel(o.idleID)
	o.idleID = ""
	o.timers.Cancel(o.connID)
	o.connID = ""
	o.mu.Unlock()

	if text != "" {
		o.sink.PushMessage(models.Message{Type: models.MessageTypeBot, Text: text})
	}
	o.manager.RequestLiveChatEnd(ctx)
}

// Stop cancels all pending timers.
func (o *Orchestrator) Stop() {
	o.timers.Stop()
}

// armIdleTimer re-arms the user-idle countdown. At most one idle timer is
// active; arming cancels the previous one.
func (o *Orchestrator) armIdleTimer() {
	if o.cfg.IdleTimeout <= 0 {
		return
	}
	o.mu.Lock()
	o.timers.Cancel(o.idleID)
	o.idleID = ""
	o.mu.Unlock()

	id, err := o.timers.ScheduleAfter(o.cfg.IdleTimeout, func() {
		slog.Info("Orchestrator: idle timeout reached")
		o.ForceEndChat(context.Background(), o.cfg.TimeoutMessage)
	})
	if err != nil {
		slog.Warn("Orchestrator.armIdleTimer: failed to arm idle timer", "error", err)
		return
	}
	o.mu.Lock()
	o.idleID = id
	o.mu.Unlock()
}

// armConnectivityTimer starts the offline countdown: one tick per
// ConnectivityTick, force-ending the chat once the budget is exhausted.
// Already armed is a no-op.
func (o *Orchestrator) armConnectivityTimer() {
	if o.cfg.ConnectivityBudget <= 0 || o.cfg.ConnectivityTick <= 0 {
		return
	}
	o.mu.Lock()
	if o.connID != "" && o.timers.Active(o.connID) {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	ticks := int(o.cfg.ConnectivityBudget / o.cfg.ConnectivityTick)
	remaining := ticks
	var mu sync.Mutex

	id, err := o.timers.ScheduleEvery(o.cfg.ConnectivityTick, func() {
		mu.Lock()
		remaining--
		expired := remaining <= 0
		mu.Unlock()
		if !expired {
			return
		}
		o.mu.Lock()
		o.timers.Cancel(o.connID)
		o.connID = ""
		o.pending = nil
		o.mu.Unlock()
		slog.Info("Orchestrator: connectivity budget exhausted")
		o.ForceEndChat(context.Background(), o.cfg.ConnectionLostMessage)
	})
	if err != nil {
		slog.Warn("Orchestrator.armConnectivityTimer: failed to arm timer", "error", err)
		return
	}
	o.mu.Lock()
	o.connID = id
	o.mu.Unlock()
	slog.Debug("Orchestrator.armConnectivityTimer: armed", "budget", o.cfg.ConnectivityBudget, "ticks", ticks)
}

func (o *Orchestrator) isLiveChatTrigger(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, trigger := range o.cfg.LiveChatTriggers {
		if lower == trigger {
			return true
		}
	}
	return false
}

func qualifiesForIdleReset(msg models.Message) bool {
	switch msg.Type {
	case models.MessageTypeHuman, models.MessageTypeButton:
		return true
	}
	return msg.Text == welcomeMarker
}

func containsStartOver(text string) bool {
	return strings.Contains(strings.ToLower(text), "start over")
}

func isAffirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y":
		return true
	}
	return false
}
