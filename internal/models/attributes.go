// Package models: structured views over the dialog session attribute bag.
//
// The dialog service round-trips an opaque key/value bag with every call and
// uses two reserved keys as a side channel: "appContext" (response card and
// alternate renderings) and "livechat" (control flags and profile fields).
// Both hold JSON-encoded objects. They are parsed exactly once, here, at the
// response-ingestion boundary.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved session attribute keys.
const (
	AttrAppContext = "appContext"
	AttrLiveChat   = "livechat"
	AttrTopic      = "topic"
)

// Topic values used by the dialog service as an out-of-band control channel.
const (
	TopicLiveChatStarting      = "liveChatStatus.starting"
	TopicLiveChatInitializing  = "liveChatStatus.initializing"
	TopicLiveChatEnteringTopic = "liveChatStatus.enteringTopic"
	TopicLiveChatDisconnected  = "liveChatStatus.disconnected"
	TopicLanguageChanged       = "language.changed"
)

// AppContext is the decoded "appContext" session attribute.
type AppContext struct {
	AltMessages  *AltRenderings `json:"altMessages,omitempty"`
	ResponseCard *ResponseCard  `json:"responseCard,omitempty"`
}

// ParseAppContext decodes the appContext attribute. An absent or empty
// attribute yields an empty context; malformed JSON is a data error that
// aborts the current state update.
func ParseAppContext(attrs map[string]string) (*AppContext, error) {
	raw := attrs[AttrAppContext]
	if raw == "" {
		return &AppContext{}, nil
	}
	var ac AppContext
	if err := json.Unmarshal([]byte(raw), &ac); err != nil {
		return nil, fmt.Errorf("error parsing appContext in session attributes: %w", err)
	}
	return &ac, nil
}

// Encode serializes the context back into the attribute bag, so rewritten
// response cards persist across round trips.
func (ac *AppContext) Encode(attrs map[string]string) error {
	data, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("failed to encode appContext: %w", err)
	}
	attrs[AttrAppContext] = string(data)
	return nil
}

// LiveChatControl is the decoded "livechat" session attribute: control flags
// interpreted before normal message rendering, plus any profile fields the
// dialog service collected.
type LiveChatControl struct {
	StartOver       bool              `json:"start_over,omitempty"`
	IgnoreStartOver bool              `json:"ignoreStartOver,omitempty"`
	Fields          map[string]string `json:"-"`
}

// ParseLiveChatControl decodes the livechat attribute. Flag values may arrive
// as booleans or strings; both are accepted. Remaining keys (the liveChat.*
// profile entries) are exposed through Fields.
func ParseLiveChatControl(attrs map[string]string) (*LiveChatControl, error) {
	raw := attrs[AttrLiveChat]
	if raw == "" {
		return &LiveChatControl{Fields: map[string]string{}}, nil
	}
	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("error parsing livechat in session attributes: %w", err)
	}
	ctrl := &LiveChatControl{Fields: make(map[string]string)}
	for key, val := range generic {
		switch key {
		case "start_over":
			ctrl.StartOver = truthy(val)
		case "ignoreStartOver":
			ctrl.IgnoreStartOver = truthy(val)
		default:
			if s, ok := val.(string); ok {
				ctrl.Fields[key] = s
			}
		}
	}
	return ctrl, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}

// MultiMessage is one entry of the embedded multi-message envelope a dialog
// reply may carry instead of a single message.
type MultiMessage struct {
	Type        string `json:"type,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Value       string `json:"value,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Body returns the message text regardless of which field variant carries it.
func (m MultiMessage) Body() string {
	if m.Value != "" {
		return m.Value
	}
	return m.Content
}

// IsCustomPayload reports whether the entry asks for a markdown-equivalent
// alternate rendering.
func (m MultiMessage) IsCustomPayload() bool {
	return m.Type == "CustomPayload" || m.ContentType == "CustomPayload"
}

// MultiMessageEnvelope is the embedded JSON envelope of ordered messages.
type MultiMessageEnvelope struct {
	Messages []MultiMessage `json:"messages"`
}

// HasMultiMessageEnvelope reports whether a dialog reply text embeds a
// multi-message envelope rather than plain text.
func HasMultiMessageEnvelope(text string) bool {
	return strings.Contains(text, `{"messages":`)
}

// ParseMultiMessageEnvelope decodes an embedded envelope.
func ParseMultiMessageEnvelope(text string) (*MultiMessageEnvelope, error) {
	var env MultiMessageEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("failed to decode message envelope: %w", err)
	}
	return &env, nil
}
