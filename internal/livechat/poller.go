package livechat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ChatBridge/internal/gateway"
	"github.com/BTreeMap/ChatBridge/internal/models"
)

// startPolling launches the long-poll loop for agent events. The loop owns
// its own cancel so SessionEnded can stop it without tearing down the
// caller's context.
func (m *Manager) startPolling(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.pollCancel != nil {
		m.pollCancel()
	}
	m.pollCancel = cancel
	m.mu.Unlock()

	go m.pollLoop(pollCtx)
}

// pollLoop repeatedly polls the gateway while a session is being connected
// or is established. A poll timeout means no events were pending; any other
// error is logged and the poll retried after the polling interval.
func (m *Manager) pollLoop(ctx context.Context) {
	slog.Debug("Manager.pollLoop: starting")
	defer slog.Debug("Manager.pollLoop: stopped")

	interval := m.cfg.PollingInterval
	if interval <= 0 {
		interval = time.Second
	}

	for {
		status := m.Status()
		if status != models.LiveChatConnecting && status != models.LiveChatEstablished {
			return
		}
		m.mu.Lock()
		session := m.session
		m.mu.Unlock()
		if session == nil {
			return
		}

		resp, err := m.gw.GetMessage(ctx, session, m.cfg.TargetLanguage)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, gateway.ErrPollTimeout):
			// No pending events this round.
		case err != nil:
			slog.Warn("Manager.pollLoop: poll failed", "error", err)
		default:
			for _, event := range resp.Messages {
				m.handlePollEvent(event)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) handlePollEvent(event models.PollEvent) {
	if !event.Known() {
		slog.Warn("Manager.handlePollEvent: unknown event tag", "type", event.Type)
		return
	}
	slog.Debug("Manager.handlePollEvent: event received", "type", event.Type)

	switch event.Type {
	case models.EventChatRequestSuccess:
		m.sink.PushLiveChatMessage(models.Message{
			Type: models.MessageTypeBot,
			Text: m.cfg.ConnectionEstablished,
		})

	case models.EventChatEstablished:
		m.AgentJoined()
		m.sink.PushLiveChatMessage(models.Message{
			Type: models.MessageTypeBot,
			Text: fmt.Sprintf("%s has joined", event.Message.Name),
		})

	case models.EventChatMessage:
		m.clearWaitingReminder()
		text := RewriteAgentText(event.Message.Text)
		m.sink.PushLiveChatMessage(models.Message{
			Type: models.MessageTypeAgent,
			Text: text,
			Alts: &models.AltRenderings{Markdown: text},
		})

	case models.EventCustomEvent, models.EventQueueUpdate:
		// Informational only.

	case models.EventAgentTyping:
		m.setBusy(true)

	case models.EventAgentNotTyping:
		m.setBusy(false)

	case models.EventChatRequestFail:
		m.sink.PushLiveChatMessage(models.Message{
			Type: models.MessageTypeBot,
			Text: m.cfg.RequestFailedMessage,
		})
		m.SessionEnded()

	case models.EventChatEnded:
		m.sink.PushLiveChatMessage(models.Message{
			Type: models.MessageTypeBot,
			Text: m.cfg.AgentEndedMessage,
		})
		m.SessionEnded()
	}
}
