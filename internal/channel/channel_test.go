package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"tidepool/internal/domain"
)

func TestMastodonPost(t *testing.T) {
	var payload map[string]string
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/statuses" {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	mastodon := NewMastodon(server.URL+"/", "token", slog.Default())
	if mastodon.Type() != domain.ChannelToot {
		t.Fatalf("unexpected channel type: %q", mastodon.Type())
	}

	if err := mastodon.Post(context.Background(), "a toot", "death"); err != nil {
		t.Fatalf("failed to post: %v", err)
	}

	if auth != "Bearer token" {
		t.Fatalf("unexpected authorization header: %q", auth)
	}
	if payload["status"] != "a toot" {
		t.Fatalf("unexpected status: %q", payload["status"])
	}
	if payload["spoiler_text"] != "death" {
		t.Fatalf("unexpected spoiler text: %q", payload["spoiler_text"])
	}
}

func TestMastodonPostOmitsEmptySpoiler(t *testing.T) {
	var payload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	mastodon := NewMastodon(server.URL, "token", slog.Default())

	if err := mastodon.Post(context.Background(), "a toot", ""); err != nil {
		t.Fatalf("failed to post: %v", err)
	}

	if _, ok := payload["spoiler_text"]; ok {
		t.Fatalf("expected spoiler_text to be omitted, got %q", payload["spoiler_text"])
	}
}

func TestTwitterPostIgnoresContentWarning(t *testing.T) {
	var payload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer server.Close()

	twitter := NewTwitter(server.URL, "bearer", slog.Default())
	if twitter.Type() != domain.ChannelTweet {
		t.Fatalf("unexpected channel type: %q", twitter.Type())
	}

	if err := twitter.Post(context.Background(), "a tweet", "death"); err != nil {
		t.Fatalf("failed to post: %v", err)
	}

	if payload["text"] != "a tweet" {
		t.Fatalf("unexpected text: %q", payload["text"])
	}
	if len(payload) != 1 {
		t.Fatalf("expected only the text field, got %v", payload)
	}
}

func TestPostFailureCarriesStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	mastodon := NewMastodon(server.URL, "token", slog.Default())

	err := mastodon.Post(context.Background(), "a toot", "")
	if err == nil {
		t.Fatalf("expected error for rate-limited post")
	}

	var chErr *Error
	if !errors.As(err, &chErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if chErr.Channel != domain.ChannelToot || chErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected error details: %+v", chErr)
	}
}
