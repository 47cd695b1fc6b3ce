package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSpeak(t *testing.T) {
	var got speakRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/speak" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Speak(context.Background(), "hello there", "abby"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got.Text != "hello there" || got.Voice != "abby" {
		t.Fatalf("server received %+v", got)
	}
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if err := c.Speak(context.Background(), "   ", ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSpeakServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Speak(context.Background(), "hi", "")
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "engine busy") {
		t.Fatalf("error should carry status and body: %v", err)
	}
}

func TestSpeakTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).WithTimeout(30 * time.Millisecond).Speak(context.Background(), "hi", "")
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if !NewClient(srv.URL).Healthy(context.Background()) {
		t.Fatal("expected healthy")
	}
	if NewClient("http://127.0.0.1:1").Healthy(context.Background()) {
		t.Fatal("expected unhealthy for unreachable server")
	}
}
