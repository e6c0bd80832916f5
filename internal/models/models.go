// Package models defines the core data structures shared across ChatBridge components.
package models

import (
	"strings"

	"github.com/google/uuid"
)

// ChatMode governs which backend receives user input.
type ChatMode string

// Chat mode constants.
const (
	ChatModeBot      ChatMode = "bot"
	ChatModeLiveChat ChatMode = "livechat"
)

// LiveChatStatus is the live-chat session state. Exactly one value holds at a
// time; lifecycle is bounded by one live-chat attempt.
type LiveChatStatus string

// Live chat status constants.
const (
	LiveChatDisconnected     LiveChatStatus = "DISCONNECTED"
	LiveChatCreatingCase     LiveChatStatus = "CREATING_CASE"
	LiveChatVerified         LiveChatStatus = "VERIFIED"
	LiveChatRequestFirstname LiveChatStatus = "REQUEST_FIRSTNAME"
	LiveChatRequestLastname  LiveChatStatus = "REQUEST_LASTNAME"
	LiveChatRequestEmail     LiveChatStatus = "REQUEST_EMAIL"
	LiveChatEnteringTopic    LiveChatStatus = "ENTERING_TOPIC"
	LiveChatRequested        LiveChatStatus = "REQUESTED"
	LiveChatInitializing     LiveChatStatus = "INITIALIZING"
	LiveChatConnecting       LiveChatStatus = "CONNECTING"
	LiveChatEstablished      LiveChatStatus = "ESTABLISHED"
)

// MessageType identifies who (or what) originated a transcript message.
type MessageType string

// Message type constants.
const (
	MessageTypeBot    MessageType = "bot"
	MessageTypeHuman  MessageType = "human"
	MessageTypeAgent  MessageType = "agent"
	MessageTypeButton MessageType = "button"
	MessageTypeSystem MessageType = "system"
)

// Button is a single quick-reply option inside a response card.
type Button struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// ResponseCard is a structured quick-reply payload attached to a bot message.
type ResponseCard struct {
	Version int      `json:"version,omitempty"`
	Title   string   `json:"title,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

// AltRenderings carries alternate renderings of a message body, keyed by
// format. Only markdown is produced today.
type AltRenderings struct {
	Markdown string `json:"markdown,omitempty"`
}

// Message is one entry in the append-only transcript. It is the sole
// consumer-visible artifact of the state machine's actions.
type Message struct {
	ID           string         `json:"id"`
	Type         MessageType    `json:"type"`
	Text         string         `json:"text"`
	Language     string         `json:"language,omitempty"`
	DialogState  string         `json:"dialog_state,omitempty"`
	ResponseCard *ResponseCard  `json:"response_card,omitempty"`
	Alts         *AltRenderings `json:"alts,omitempty"`
}

// NewMessage builds a transcript message with a fresh ID.
func NewMessage(t MessageType, text string) Message {
	return Message{ID: uuid.NewString(), Type: t, Text: text}
}

// Session attribute keys under which collected profile fields ride along with
// every dialog round trip. The dotted names are fixed by the live-agent
// backend contract.
const (
	AttrLiveChatFirstname = "liveChat.firstname"
	AttrLiveChatLastname  = "liveChat.lastname"
	AttrLiveChatEmail     = "liveChat.emailaddress"
	AttrLiveChatPhone     = "liveChat.phonenumber"
	AttrLiveChatLocale    = "liveChat.locale"
)

// LiveChatProfile holds user-identifying fields collected conversationally
// before a live-chat handoff.
type LiveChatProfile struct {
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

// DisplayName renders the profile as the live-chat username presented to the
// agent ("First Last - email").
func (p LiveChatProfile) DisplayName() string {
	if p.FirstName == "" && p.LastName == "" {
		return p.Email
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if p.Email == "" {
		return name
	}
	return name + " - " + p.Email
}

// Complete reports whether every field required for case creation is present.
func (p LiveChatProfile) Complete() bool {
	return p.FirstName != "" && p.LastName != "" && p.Email != ""
}

// Attributes returns the profile as session-attribute entries so it survives
// dialog-service round trips.
func (p LiveChatProfile) Attributes() map[string]string {
	attrs := make(map[string]string)
	if p.FirstName != "" {
		attrs[AttrLiveChatFirstname] = p.FirstName
	}
	if p.LastName != "" {
		attrs[AttrLiveChatLastname] = p.LastName
	}
	if p.Email != "" {
		attrs[AttrLiveChatEmail] = p.Email
	}
	if p.Phone != "" {
		attrs[AttrLiveChatPhone] = p.Phone
	}
	if p.Locale != "" {
		attrs[AttrLiveChatLocale] = p.Locale
	}
	return attrs
}

// ProfileFromAttributes rebuilds a profile from session-attribute entries.
func ProfileFromAttributes(attrs map[string]string) LiveChatProfile {
	return LiveChatProfile{
		FirstName: attrs[AttrLiveChatFirstname],
		LastName:  attrs[AttrLiveChatLastname],
		Email:     attrs[AttrLiveChatEmail],
		Phone:     attrs[AttrLiveChatPhone],
		Locale:    attrs[AttrLiveChatLocale],
	}
}
