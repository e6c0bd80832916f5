package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ChatBridge/internal/dialog"
	"github.com/BTreeMap/ChatBridge/internal/models"
)

// Session attribute keys read by the response interpreter beyond the
// reserved structured sub-objects.
const (
	attrAgentsAvailable = "agents_available"
	attrUserLocale      = "userLocale"
)

// Button value prefixes used by the dialog model to mark agent-dependent
// quick replies. The prefix is stripped from surviving buttons.
const (
	agentButtonPrefix   = "agent:"
	noAgentButtonPrefix = "noagent:"
)

const dialogStateFulfilled = "Fulfilled"

// interpretDialogResponse applies a dialog response: control flags first,
// then the reserved topic channel, then message rendering. Malformed
// structured attributes abort the update.
func (o *Orchestrator) interpretDialogResponse(ctx context.Context, resp *dialog.Response) error {
	ctrl, err := models.ParseLiveChatControl(resp.SessionAttributes)
	if err != nil {
		return err
	}

	if ctrl.IgnoreStartOver {
		slog.Debug("Orchestrator.interpretDialogResponse: ignoreStartOver flag, clearing live chat state")
		o.manager.ResetLiveChat()
		delete(resp.SessionAttributes, models.AttrLiveChat)
	}
	if ctrl.StartOver {
		delete(resp.SessionAttributes, models.AttrLiveChat)
		o.mu.Lock()
		nested := o.startOverInFlight
		o.startOverInFlight = true
		o.mu.Unlock()
		if nested {
			// A start_over answer to the synthetic "Start Over" post
			// would loop; drop the flag and stop here.
			slog.Warn("Orchestrator.interpretDialogResponse: nested start_over flag ignored")
			return nil
		}
		defer func() {
			o.mu.Lock()
			o.startOverInFlight = false
			o.mu.Unlock()
		}()
		slog.Info("Orchestrator.interpretDialogResponse: start_over flag, re-issuing start over")
		return o.PostTextMessage(ctx, models.Message{
			Type: models.MessageTypeButton,
			Text: "Start Over",
		})
	}

	if topic := resp.SessionAttributes[models.AttrTopic]; topic != "" {
		delete(resp.SessionAttributes, models.AttrTopic)
		if err := o.handleTopic(ctx, topic, resp); err != nil {
			return err
		}
	}

	if err := o.renderDialogResponse(resp); err != nil {
		return err
	}

	if resp.DialogState == dialogStateFulfilled && o.manager.Mode() == models.ChatModeBot &&
		o.manager.Status() == models.LiveChatDisconnected && o.cfg.WelcomeMessage != "" {
		o.sink.PushMessage(models.Message{Type: models.MessageTypeBot, Text: o.cfg.WelcomeMessage})
	}
	return nil
}

// handleTopic dispatches the reserved topic control channel.
func (o *Orchestrator) handleTopic(ctx context.Context, topic string, resp *dialog.Response) error {
	slog.Debug("Orchestrator.handleTopic: topic received", "topic", topic)

	switch topic {
	case models.TopicLiveChatStarting:
		return o.handleLiveChatStarting(resp)

	case models.TopicLiveChatInitializing:
		o.manager.ApplyDialogStatus(models.LiveChatInitializing)

	case models.TopicLiveChatEnteringTopic:
		o.manager.ApplyDialogStatus(models.LiveChatEnteringTopic)

	case models.TopicLiveChatDisconnected:
		o.manager.ApplyDialogStatus(models.LiveChatDisconnected)

	case models.TopicLanguageChanged:
		o.handleLanguageChanged(ctx, resp)

	default:
		slog.Warn("Orchestrator.handleTopic: unrecognized topic", "topic", topic)
	}
	return nil
}

// handleLiveChatStarting rewrites agent-dependent quick-reply buttons based
// on the agents_available flag, persists the rewritten card back into the
// attribute bag, and moves status to REQUESTED or DISCONNECTED.
func (o *Orchestrator) handleLiveChatStarting(resp *dialog.Response) error {
	available := strings.EqualFold(resp.SessionAttributes[attrAgentsAvailable], "true")

	ac, err := models.ParseAppContext(resp.SessionAttributes)
	if err != nil {
		return err
	}
	if ac.ResponseCard != nil {
		ac.ResponseCard.Buttons = rewriteAgentButtons(ac.ResponseCard.Buttons, available)
		if err := ac.Encode(resp.SessionAttributes); err != nil {
			return err
		}
	}

	if available {
		o.manager.ApplyDialogStatus(models.LiveChatRequested)
	} else {
		o.manager.ApplyDialogStatus(models.LiveChatDisconnected)
	}
	slog.Info("Orchestrator.handleLiveChatStarting: live chat starting", "agentsAvailable", available)
	return nil
}

// rewriteAgentButtons keeps buttons matching the availability path, strips
// their marker prefix, and drops the rest. Unprefixed buttons always stay.
func rewriteAgentButtons(buttons []models.Button, available bool) []models.Button {
	out := make([]models.Button, 0, len(buttons))
	for _, b := range buttons {
		switch {
		case strings.HasPrefix(b.Value, agentButtonPrefix):
			if available {
				b.Value = strings.TrimPrefix(b.Value, agentButtonPrefix)
				out = append(out, b)
			}
		case strings.HasPrefix(b.Value, noAgentButtonPrefix):
			if !available {
				b.Value = strings.TrimPrefix(b.Value, noAgentButtonPrefix)
				out = append(out, b)
			}
		default:
			out = append(out, b)
		}
	}
	return out
}

// handleLanguageChanged switches the dialog locale and re-greets the user in
// the new language.
func (o *Orchestrator) handleLanguageChanged(ctx context.Context, resp *dialog.Response) {
	locale := resp.SessionAttributes[attrUserLocale]
	if locale == "" {
		slog.Warn("Orchestrator.handleLanguageChanged: no locale in session attributes")
		return
	}

	o.mu.Lock()
	o.locale = locale
	o.mu.Unlock()
	slog.Info("Orchestrator.handleLanguageChanged: locale changed", "locale", locale)

	welcome := o.cfg.WelcomeMessage
	if welcome == "" {
		return
	}
	if o.translator != nil {
		translated, err := o.translator.Translate(ctx, languageOf(locale), welcome)
		if err != nil {
			slog.Warn("Orchestrator.handleLanguageChanged: welcome translation failed", "error", err)
		} else {
			welcome = translated
		}
	}
	o.sink.PushMessage(models.Message{Type: models.MessageTypeBot, Text: welcome, Language: languageOf(locale)})
}

// languageOf reduces a dialog locale ("es_US") to its language code ("es").
func languageOf(locale string) string {
	if i := strings.IndexAny(locale, "_-"); i > 0 {
		return locale[:i]
	}
	return locale
}

// renderDialogResponse pushes the dialog reply to the transcript: either one
// message, or each entry of an embedded multi-message envelope in order with
// the response card attached only to the last.
func (o *Orchestrator) renderDialogResponse(resp *dialog.Response) error {
	if resp.Message == "" {
		return nil
	}

	ac, err := models.ParseAppContext(resp.SessionAttributes)
	if err != nil {
		return err
	}

	if models.HasMultiMessageEnvelope(resp.Message) {
		env, err := models.ParseMultiMessageEnvelope(resp.Message)
		if err != nil {
			return err
		}
		for i, mm := range env.Messages {
			msg := models.Message{Type: models.MessageTypeBot, Text: mm.Body()}
			if mm.IsCustomPayload() {
				msg.Alts = &models.AltRenderings{Markdown: mm.Body()}
			}
			if i == len(env.Messages)-1 {
				msg.ResponseCard = ac.ResponseCard
			}
			o.sink.PushMessage(msg)
		}
		return nil
	}

	msg := models.Message{
		Type:         models.MessageTypeBot,
		Text:         resp.Message,
		DialogState:  resp.DialogState,
		ResponseCard: ac.ResponseCard,
		Alts:         ac.AltMessages,
	}
	o.sink.PushMessage(msg)
	return nil
}
