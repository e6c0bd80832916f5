// Package models: poll event decoding for the live-agent gateway.
package models

import (
	"encoding/json"
	"fmt"
)

// PollEventType tags one backend event returned by /getMessage.
type PollEventType string

// Recognized poll event types. Unrecognized tags decode to an event with its
// raw tag preserved; callers log and ignore them.
const (
	EventChatRequestSuccess PollEventType = "ChatRequestSuccess"
	EventChatEstablished    PollEventType = "ChatEstablished"
	EventChatMessage        PollEventType = "ChatMessage"
	EventChatRequestFail    PollEventType = "ChatRequestFail"
	EventChatEnded          PollEventType = "ChatEnded"
	EventAgentTyping        PollEventType = "AgentTyping"
	EventAgentNotTyping     PollEventType = "AgentNotTyping"
	EventCustomEvent        PollEventType = "CustomEvent"
	EventQueueUpdate        PollEventType = "QueueUpdate"
)

// PollEventBody is the inner message payload of a poll event. Fields are
// populated depending on the event type.
type PollEventBody struct {
	Name string `json:"name,omitempty"` // agent display name (ChatEstablished)
	Text string `json:"text,omitempty"` // agent message text (ChatMessage)
}

// PollEvent is one decoded backend event.
type PollEvent struct {
	Type    PollEventType `json:"type"`
	Message PollEventBody `json:"message"`
}

// Known reports whether the event carries one of the recognized tags.
func (e PollEvent) Known() bool {
	switch e.Type {
	case EventChatRequestSuccess, EventChatEstablished, EventChatMessage,
		EventChatRequestFail, EventChatEnded, EventAgentTyping,
		EventAgentNotTyping, EventCustomEvent, EventQueueUpdate:
		return true
	}
	return false
}

// PollResponse is the /getMessage response envelope: an ordered list of
// backend events, processed strictly in array order.
type PollResponse struct {
	Messages []PollEvent `json:"messages"`
}

// DecodePollResponse parses a /getMessage response body.
func DecodePollResponse(data []byte) (*PollResponse, error) {
	var resp PollResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}
	return &resp, nil
}
