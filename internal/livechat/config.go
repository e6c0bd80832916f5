// Package livechat implements the live-agent handoff session manager: the
// status state machine, the session creation protocol, the long-poll loop
// and the outbound message relay.
package livechat

import (
	"errors"
	"time"
)

// Configuration errors surfaced by RequestLiveChat validation. Both fail the
// initiating action immediately, with no retry.
var (
	ErrLiveChatDisabled = errors.New("live chat is not enabled in config")
	ErrEndpointNotSet   = errors.New("live agent endpoint is not set in config")
)

// Config holds live-chat behavior settings.
type Config struct {
	// Enabled gates the whole live-chat feature.
	Enabled bool

	// Endpoint is the live-agent gateway base URL. Required when Enabled.
	Endpoint string

	// CollectProfile enables the conversational profile-collection
	// sub-sequence (first name, last name, email) before a handoff.
	CollectProfile bool

	// PollingInterval is the sleep between poll loop iterations.
	PollingInterval time.Duration

	// WaitingReminderInterval re-pushes the waiting message while no agent
	// has joined. Zero disables the reminder.
	WaitingReminderInterval time.Duration

	// SourceLanguage is the current UI language.
	SourceLanguage string

	// TargetLanguage is the fixed reference language of the agent side.
	TargetLanguage string

	// User-facing message templates.
	WaitingMessage        string
	ConfirmationMessage   string // %s expands to the case number
	PromptFirstName       string
	PromptLastName        string
	PromptEmail           string
	PromptTopic           string
	DisconnectingMessage  string
	ConnectionEstablished string
	RequestFailedMessage  string
	AgentEndedMessage     string
	SessionEndedMessage   string
}

// DefaultConfig returns the stock message set and intervals.
func DefaultConfig() Config {
	return Config{
		PollingInterval:       5 * time.Second,
		SourceLanguage:        "en",
		TargetLanguage:        "en",
		WaitingMessage:        "Please wait while we connect you to an agent.",
		ConfirmationMessage:   "Your case %s has been created.",
		PromptFirstName:       "What is your first name?",
		PromptLastName:        "What is your last name?",
		PromptEmail:           "What is your email address?",
		PromptTopic:           "What would you like to discuss with the agent?",
		DisconnectingMessage:  "No problem, returning you to the bot.",
		ConnectionEstablished: "Live Chat Connection Established",
		RequestFailedMessage:  "We could not reach an agent at this time.",
		AgentEndedMessage:     "Agent has ended the session",
		SessionEndedMessage:   "Live chat session ended, returning you to the bot.",
	}
}
