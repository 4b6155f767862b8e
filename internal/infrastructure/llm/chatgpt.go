package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

const maxPriorExcerpt = 280

// ChatGPTClient implements ports.ContentGenerator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	maxChars     int
	httpClient   *http.Client
}

var _ ports.ContentGenerator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		maxChars:     cfg.MaxChars,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for post text about item. Updates include the
// previously published coverage so the post can say what changed.
func (c *ChatGPTClient) Generate(ctx context.Context, item domain.NewsItem, decision domain.Decision) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chatgpt client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: buildPrompt(item, decision, c.maxChars)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chatgpt returned no choices")
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chatgpt returned empty content")
	}
	return clip(text, c.maxChars), nil
}

func buildPrompt(item domain.NewsItem, decision domain.Decision, maxChars int) string {
	var b strings.Builder
	if decision.IsUpdate() {
		b.WriteString("This is an UPDATE to a story already covered. Say what is new; do not repeat the earlier posts.\n\n")
		b.WriteString("Previous coverage, most recent first:\n")
		for _, prior := range decision.PreviousContext() {
			fmt.Fprintf(&b, "- [%s] %s", prior.PostedAt.UTC().Format(time.RFC3339), prior.Title)
			if prior.ContentExcerpt != "" {
				fmt.Fprintf(&b, ": %s", clip(prior.ContentExcerpt, maxPriorExcerpt))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Write a short social media post about this story.\n")
	if item.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", item.Topic)
	}
	fmt.Fprintf(&b, "Headline: %s\n", item.Title)
	if item.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", item.Source)
	}
	if item.Content != "" {
		fmt.Fprintf(&b, "Article: %s\n", item.Content)
	}
	if maxChars > 0 {
		fmt.Fprintf(&b, "Keep it under %d characters.\n", maxChars)
	}
	return b.String()
}

func clip(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a news-reporting cat who writes short, accurate posts."
	}
	return prompt
}
