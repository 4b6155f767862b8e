package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/domain"
)

func updateDecision() domain.Decision {
	posted := time.Date(2025, time.November, 21, 9, 0, 0, 0, time.UTC)
	return domain.Decision{
		Status: domain.StatusUpdate,
		Reason: domain.ReasonUpdateKeyword,
		Related: []domain.ClusterMember{{
			Post: domain.PostRecord{
				Title:          "Senate debates budget bill",
				ContentExcerpt: "Debate ran late into the night.",
				PostedAt:       posted,
			},
			Score: 0.5,
		}},
	}
}

func TestChatGPTGenerate(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Breaking mews: the bill passed.  "}}]}`))
	}))
	defer server.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "test-model", APIKey: "sk-test", MaxChars: 280})
	item := domain.NewsItem{Title: "Senate passes budget bill", Source: "Reuters", Content: "The Senate passed the bill."}

	text, err := client.Generate(context.Background(), item, updateDecision())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if text != "Breaking mews: the bill passed." {
		t.Fatalf("unexpected text %q", text)
	}

	if captured.Model != "test-model" || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request %+v", captured)
	}
	if captured.Messages[0].Content != safePrompt("") {
		t.Fatalf("expected default system prompt, got %q", captured.Messages[0].Content)
	}
	user := captured.Messages[1].Content
	for _, want := range []string{"UPDATE", "Senate debates budget bill", "Debate ran late", "2025-11-21T09:00:00Z", "Headline: Senate passes budget bill", "under 280 characters"} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestBuildPromptFresh(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(domain.NewsItem{Title: "Storm makes landfall"}, domain.Decision{Status: domain.StatusFresh}, 0)
	if strings.Contains(prompt, "UPDATE") || strings.Contains(prompt, "characters") {
		t.Fatalf("fresh prompt carries update framing: %q", prompt)
	}
}

func TestChatGPTGenerateErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	mux.HandleFunc("/blank", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	item := domain.NewsItem{Title: "t"}
	if _, err := NewChatGPTClient(config.ChatGPTConfig{}).Generate(ctx, item, domain.Decision{}); err == nil {
		t.Fatal("expected misconfiguration error")
	}
	for _, path := range []string{"/fail", "/empty", "/blank"} {
		client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL + path, Model: "m", APIKey: "k"})
		if _, err := client.Generate(ctx, item, domain.Decision{}); err == nil {
			t.Fatalf("expected error for %s", path)
		}
	}
}

func TestClip(t *testing.T) {
	t.Parallel()

	if got := clip("short", 10); got != "short" {
		t.Fatalf("clip kept %q", got)
	}
	if got := clip("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("clip = %q", got)
	}
	if got := clip("abc", 0); got != "abc" {
		t.Fatalf("clip without limit = %q", got)
	}
}

func TestHeadlineGenerator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := HeadlineGenerator{}
	text, err := g.Generate(ctx, domain.NewsItem{Title: "Storm makes landfall", Source: "AP"}, domain.Decision{Status: domain.StatusFresh})
	if err != nil || text != "Storm makes landfall (AP)" {
		t.Fatalf("Generate = %q, %v", text, err)
	}
	text, _ = g.Generate(ctx, domain.NewsItem{Topic: "Storm"}, updateDecision())
	if text != "UPDATE: Storm" {
		t.Fatalf("update text = %q", text)
	}
	if _, err := g.Generate(ctx, domain.NewsItem{}, domain.Decision{}); err == nil {
		t.Fatal("expected error without title")
	}
}
