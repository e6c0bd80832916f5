package dialog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestPostText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/postText" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if body["inputText"] != "hello" || body["localeId"] != "en_US" {
			t.Errorf("unexpected request body: %v", body)
		}
		attrs, _ := body["sessionAttributes"].(map[string]any)
		if attrs["topic"] != "support" {
			t.Errorf("session attributes not round-tripped: %v", attrs)
		}
		w.Write([]byte(`{"message":"hi","sessionAttributes":{"topic":"support"},"dialogState":"ElicitIntent"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	resp, err := c.PostText(context.Background(), "hello", "en_US", map[string]string{"topic": "support"})
	if err != nil {
		t.Fatalf("PostText failed: %v", err)
	}
	if resp.Message != "hi" || resp.DialogState != "ElicitIntent" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.SessionAttributes["topic"] != "support" {
		t.Errorf("attributes missing: %v", resp.SessionAttributes)
	}
}

func TestPostTextRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"message":"recovered"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	resp, err := c.PostText(context.Background(), "hello", "en_US", nil)
	if err != nil {
		t.Fatalf("PostText failed after retry: %v", err)
	}
	if resp.Message != "recovered" {
		t.Errorf("message = %q", resp.Message)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestPostTextDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	if _, err := c.PostText(context.Background(), "hello", "en_US", nil); err == nil {
		t.Fatal("expected error on 400")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestPostTextDefaultsAttributeBag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"hi"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	resp, err := c.PostText(context.Background(), "hello", "en_US", nil)
	if err != nil {
		t.Fatalf("PostText failed: %v", err)
	}
	if resp.SessionAttributes == nil {
		t.Error("expected non-nil session attributes")
	}
}
