package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/domain"
)

func TestClientPublish(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var payload postPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Text != "meow" || payload.URL != "https://example.com/a" || payload.Title != "Title" {
			t.Errorf("unexpected payload %+v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"post-7"}`))
	}))
	defer server.Close()

	c := NewClient(config.WebhookConfig{URL: server.URL, APIKey: "secret"})
	ids, err := c.Publish(context.Background(), "meow", domain.NewsItem{Title: "Title", URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if ids[Platform] != "post-7" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestClientPublishErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/anonymous", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	for _, endpoint := range []string{"", server.URL + "/down", server.URL + "/anonymous"} {
		c := NewClient(config.WebhookConfig{URL: endpoint})
		if _, err := c.Publish(ctx, "meow", domain.NewsItem{}); err == nil {
			t.Fatalf("expected error for endpoint %q", endpoint)
		}
	}
}
