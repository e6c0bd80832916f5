package models

import "testing"

func TestDisplayName(t *testing.T) {
	cases := []struct {
		name    string
		profile LiveChatProfile
		want    string
	}{
		{"full profile", LiveChatProfile{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, "Ada Lovelace - ada@example.com"},
		{"no email", LiveChatProfile{FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{"email only", LiveChatProfile{Email: "ada@example.com"}, "ada@example.com"},
		{"first name only", LiveChatProfile{FirstName: "Ada", Email: "ada@example.com"}, "Ada - ada@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.profile.DisplayName(); got != tc.want {
				t.Errorf("DisplayName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProfileComplete(t *testing.T) {
	p := LiveChatProfile{FirstName: "A", LastName: "B", Email: "a@b.com"}
	if !p.Complete() {
		t.Error("expected complete profile")
	}
	p.Email = ""
	if p.Complete() {
		t.Error("expected incomplete profile without email")
	}
}

func TestProfileAttributesRoundTrip(t *testing.T) {
	p := LiveChatProfile{
		FirstName: "A",
		LastName:  "B",
		Email:     "a@b.com",
		Phone:     "555-0100",
		Locale:    "en_US",
	}
	got := ProfileFromAttributes(p.Attributes())
	if got != p {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestProfileAttributesOmitsEmptyFields(t *testing.T) {
	p := LiveChatProfile{FirstName: "A"}
	attrs := p.Attributes()
	if len(attrs) != 1 {
		t.Errorf("expected 1 attribute, got %d: %v", len(attrs), attrs)
	}
	if attrs[AttrLiveChatFirstname] != "A" {
		t.Errorf("expected firstname attribute, got %v", attrs)
	}
}

func TestNewMessageAssignsID(t *testing.T) {
	msg := NewMessage(MessageTypeBot, "hello")
	if msg.ID == "" {
		t.Error("expected generated message ID")
	}
	if msg.Type != MessageTypeBot || msg.Text != "hello" {
		t.Errorf("unexpected message: %+v", msg)
	}
}
