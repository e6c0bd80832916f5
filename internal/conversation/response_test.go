package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BTreeMap/ChatBridge/internal/dialog"
	"github.com/BTreeMap/ChatBridge/internal/models"
)

func encodeAppContext(t *testing.T, ac models.AppContext) string {
	t.Helper()
	data, err := json.Marshal(ac)
	if err != nil {
		t.Fatalf("failed to encode appContext: %v", err)
	}
	return string(data)
}

func agentCardAttrs(t *testing.T, available string) map[string]string {
	t.Helper()
	card := &models.ResponseCard{Buttons: []models.Button{
		{Text: "Talk to agent", Value: "agent:request"},
		{Text: "Leave a message", Value: "noagent:voicemail"},
		{Text: "Main menu", Value: "menu"},
	}}
	return map[string]string{
		models.AttrTopic:      models.TopicLiveChatStarting,
		"agents_available":    available,
		models.AttrAppContext: encodeAppContext(t, models.AppContext{ResponseCard: card}),
	}
}

func TestAgentsUnavailableButtonFiltering(t *testing.T) {
	o, dc, mgr, _ := newTestOrchestrator(DefaultConfig())
	dc.responses = []*dialog.Response{{
		Message:           "One moment",
		SessionAttributes: agentCardAttrs(t, "false"),
	}}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("talk to someone")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	if len(mgr.appliedStatuses) != 1 || mgr.appliedStatuses[0] != models.LiveChatDisconnected {
		t.Errorf("applied statuses = %v, want [DISCONNECTED]", mgr.appliedStatuses)
	}

	ac, err := models.ParseAppContext(o.SessionAttributes())
	if err != nil {
		t.Fatalf("ParseAppContext failed: %v", err)
	}
	if ac.ResponseCard == nil || len(ac.ResponseCard.Buttons) != 2 {
		t.Fatalf("expected 2 surviving buttons, got %+v", ac.ResponseCard)
	}
	if ac.ResponseCard.Buttons[0].Value != "voicemail" {
		t.Errorf("noagent prefix not stripped: %+v", ac.ResponseCard.Buttons[0])
	}
	if ac.ResponseCard.Buttons[1].Value != "menu" {
		t.Errorf("unprefixed button dropped: %+v", ac.ResponseCard.Buttons[1])
	}
}

func TestAgentsAvailableButtonFiltering(t *testing.T) {
	o, dc, mgr, _ := newTestOrchestrator(DefaultConfig())
	dc.responses = []*dialog.Response{{
		Message:           "Connecting you",
		SessionAttributes: agentCardAttrs(t, "true"),
	}}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("talk to someone")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	if len(mgr.appliedStatuses) != 1 || mgr.appliedStatuses[0] != models.LiveChatRequested {
		t.Errorf("applied statuses = %v, want [REQUESTED]", mgr.appliedStatuses)
	}

	ac, err := models.ParseAppContext(o.SessionAttributes())
	if err != nil {
		t.Fatalf("ParseAppContext failed: %v", err)
	}
	if len(ac.ResponseCard.Buttons) != 2 || ac.ResponseCard.Buttons[0].Value != "request" {
		t.Errorf("agent button not kept and stripped: %+v", ac.ResponseCard.Buttons)
	}
}

func TestTopicStatusMapping(t *testing.T) {
	cases := []struct {
		topic string
		want  models.LiveChatStatus
	}{
		{models.TopicLiveChatInitializing, models.LiveChatInitializing},
		{models.TopicLiveChatEnteringTopic, models.LiveChatEnteringTopic},
		{models.TopicLiveChatDisconnected, models.LiveChatDisconnected},
	}
	for _, tc := range cases {
		t.Run(tc.topic, func(t *testing.T) {
			o, dc, mgr, _ := newTestOrchestrator(DefaultConfig())
			dc.responses = []*dialog.Response{{
				Message:           "ok",
				SessionAttributes: map[string]string{models.AttrTopic: tc.topic},
			}}
			defer o.Stop()

			if err := o.PostTextMessage(context.Background(), human("hi")); err != nil {
				t.Fatalf("PostTextMessage failed: %v", err)
			}
			if len(mgr.appliedStatuses) != 1 || mgr.appliedStatuses[0] != tc.want {
				t.Errorf("applied statuses = %v, want [%s]", mgr.appliedStatuses, tc.want)
			}
		})
	}
}

func TestStartOverFlagReissuesButton(t *testing.T) {
	o, dc, _, sink := newTestOrchestrator(DefaultConfig())
	dc.responses = []*dialog.Response{
		{
			Message:           "should not render",
			SessionAttributes: map[string]string{models.AttrLiveChat: `{"start_over":true}`},
		},
		{Message: "fresh start", SessionAttributes: map[string]string{}},
	}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("reset please")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	if dc.callCount() != 2 {
		t.Fatalf("dialog calls = %d, want 2", dc.callCount())
	}
	if got := dc.call(1); got.text != "Start Over" {
		t.Errorf("re-issued text = %q, want Start Over", got.text)
	}
	for _, msg := range sink.all() {
		if msg.Text == "should not render" {
			t.Error("suppressed response was rendered")
		}
	}
}

func TestStartOverFlagDoesNotRecurse(t *testing.T) {
	o, dc, _, sink := newTestOrchestrator(DefaultConfig())
	startOver := map[string]string{models.AttrLiveChat: `{"start_over":true}`}
	dc.responses = []*dialog.Response{
		{Message: "loop one", SessionAttributes: startOver},
		{Message: "loop two", SessionAttributes: map[string]string{models.AttrLiveChat: `{"start_over":true}`}},
	}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("reset please")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	if dc.callCount() != 2 {
		t.Fatalf("dialog calls = %d, want 2 (re-issue once, then stop)", dc.callCount())
	}
	for _, msg := range sink.all() {
		if msg.Text == "loop one" || msg.Text == "loop two" {
			t.Errorf("suppressed response was rendered: %q", msg.Text)
		}
	}
}

func TestIgnoreStartOverClearsSilently(t *testing.T) {
	o, dc, mgr, sink := newTestOrchestrator(DefaultConfig())
	dc.responses = []*dialog.Response{{
		Message:           "carry on",
		SessionAttributes: map[string]string{models.AttrLiveChat: `{"ignoreStartOver":"true"}`},
	}}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("hi")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	if mgr.resetCalls != 1 {
		t.Errorf("reset calls = %d, want 1", mgr.resetCalls)
	}
	bots := sink.botMessages()
	if len(bots) != 1 || bots[0].Text != "carry on" {
		t.Errorf("expected normal rendering, got %+v", bots)
	}
}

func TestMultiMessageRendering(t *testing.T) {
	o, dc, _, sink := newTestOrchestrator(DefaultConfig())
	card := encodeAppContext(t, models.AppContext{
		ResponseCard: &models.ResponseCard{Buttons: []models.Button{{Text: "Go", Value: "go"}}},
	})
	envelope := `{"messages":[{"type":"PlainText","value":"first"},{"type":"CustomPayload","content":"**second**"},{"type":"PlainText","value":"third"}]}`
	dc.responses = []*dialog.Response{{
		Message:           envelope,
		SessionAttributes: map[string]string{models.AttrAppContext: card},
	}}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("menu")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	bots := sink.botMessages()
	if len(bots) != 3 {
		t.Fatalf("bot messages = %d, want 3", len(bots))
	}
	if bots[0].Text != "first" || bots[1].Text != "**second**" || bots[2].Text != "third" {
		t.Errorf("message order wrong: %+v", bots)
	}
	if bots[0].ResponseCard != nil || bots[1].ResponseCard != nil {
		t.Error("card attached before last message")
	}
	if bots[2].ResponseCard == nil {
		t.Error("card missing on last message")
	}
	if bots[1].Alts == nil || bots[1].Alts.Markdown != "**second**" {
		t.Errorf("custom payload not mirrored to markdown: %+v", bots[1].Alts)
	}
}

// fakeTranslator returns a fixed translation.
type fakeTranslator struct {
	out   string
	calls int
}

func (f *fakeTranslator) Translate(_ context.Context, _ string, _ string) (string, error) {
	f.calls++
	return f.out, nil
}

func TestLanguageChanged(t *testing.T) {
	cfg := DefaultConfig()
	dc := &fakeDialog{}
	mgr := newFakeManager()
	sink := &fakeSink{}
	tr := &fakeTranslator{out: "¡Hola!"}
	o := NewOrchestrator(cfg, dc, mgr, sink, WithTranslator(tr))
	defer o.Stop()

	dc.responses = []*dialog.Response{
		{
			Message: "",
			SessionAttributes: map[string]string{
				models.AttrTopic: models.TopicLanguageChanged,
				"userLocale":     "es_US",
			},
		},
		{Message: "ok", SessionAttributes: map[string]string{}},
	}

	ctx := context.Background()
	if err := o.PostTextMessage(ctx, human("español por favor")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	bots := sink.botMessages()
	if len(bots) != 1 || bots[0].Text != "¡Hola!" || bots[0].Language != "es" {
		t.Errorf("expected translated welcome, got %+v", bots)
	}

	if err := o.PostTextMessage(ctx, human("hola")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}
	if got := dc.call(1); got.locale != "es_US" {
		t.Errorf("locale after change = %q, want es_US", got.locale)
	}
}

func TestRequestedStatusAnnotatesProfile(t *testing.T) {
	o, dc, mgr, _ := newTestOrchestrator(DefaultConfig())
	mgr.set(models.ChatModeLiveChat, models.LiveChatRequested)
	mgr.profile = models.LiveChatProfile{FirstName: "Ada", Email: "ada@example.com"}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("anything")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	if dc.callCount() != 1 {
		t.Fatalf("dialog calls = %d, want 1", dc.callCount())
	}
	attrs := dc.call(0).attrs
	if attrs[models.AttrLiveChatFirstname] != "Ada" || attrs[models.AttrLiveChatEmail] != "ada@example.com" {
		t.Errorf("profile not annotated: %v", attrs)
	}
}

func TestFulfilledReinitializesGreeting(t *testing.T) {
	cfg := DefaultConfig()
	o, dc, _, sink := newTestOrchestrator(cfg)
	dc.responses = []*dialog.Response{{
		Message:           "done",
		DialogState:       "Fulfilled",
		SessionAttributes: map[string]string{},
	}}
	defer o.Stop()

	if err := o.PostTextMessage(context.Background(), human("finish it")); err != nil {
		t.Fatalf("PostTextMessage failed: %v", err)
	}

	bots := sink.botMessages()
	if len(bots) != 2 {
		t.Fatalf("bot messages = %d, want 2 (reply + greeting)", len(bots))
	}
	if bots[1].Text != cfg.WelcomeMessage {
		t.Errorf("expected greeting after Fulfilled, got %q", bots[1].Text)
	}
}
