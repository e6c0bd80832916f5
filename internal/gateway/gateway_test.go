package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/ChatBridge/internal/models"
)

func TestCreateCaseDecodesOutputValues(t *testing.T) {
	var gotBody CreateCaseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createCase" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`[{"outputValues":{"var_CaseNumber":"00042","var_CaseId":"c-1","var_Contact.Id":"ct-1"}}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	details, err := c.CreateCase(context.Background(), CreateCaseRequest{
		FirstName: "A", LastName: "B", Email: "a@b.com", CaseSubject: "topic",
	})
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
	if details.CaseNumber != "00042" || details.CaseID != "c-1" || details.ContactID != "ct-1" {
		t.Errorf("unexpected details: %+v", details)
	}
	if gotBody.FirstName != "A" || gotBody.LastName != "B" || gotBody.Email != "a@b.com" {
		t.Errorf("profile did not reach wire body: %+v", gotBody)
	}
}

func TestAgentWaitTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"outputValues":{"waitTime":"2 minutes"}}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.AgentWaitTime(context.Background())
	if err != nil {
		t.Fatalf("AgentWaitTime failed: %v", err)
	}
	if got != "2 minutes" {
		t.Errorf("waitTime = %q", got)
	}
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Connect(context.Background(), ConnectRequest{}); err != nil {
		t.Fatalf("Connect failed after retry: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Connect(context.Background(), ConnectRequest{}); err == nil {
		t.Fatal("expected error on 400")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestGetMessagePollTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithPollTimeout(20*time.Millisecond), WithMaxRetries(0))
	_, err := c.GetMessage(context.Background(), Session(`{}`), "en")
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("expected ErrPollTimeout, got %v", err)
	}
}

func TestGetMessageDecodesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode poll body: %v", err)
		}
		if body["targetLanguage"] != "en" {
			t.Errorf("targetLanguage = %v", body["targetLanguage"])
		}
		w.Write([]byte(`{"messages":[{"type":"ChatMessage","message":{"text":"hi"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.GetMessage(context.Background(), Session(`{"token":"t"}`), "en")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Type != models.EventChatMessage {
		t.Errorf("unexpected poll response: %+v", resp)
	}
}

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translation":"hola"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Translate(context.Background(), "es", "hello")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "hola" {
		t.Errorf("translation = %q", got)
	}
}
