package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

// Platform is the PlatformIDs key for posts delivered through a webhook.
const Platform = "webhook"

// Client delivers posts to a JSON endpoint that answers with the id it stored.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Publisher = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.WebhookConfig) *Client {
	return &Client{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

type postPayload struct {
	Text   string `json:"text"`
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Publish posts the text and story metadata.
func (c *Client) Publish(ctx context.Context, text string, item domain.NewsItem) (map[string]string, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is not configured")
	}

	var resp struct {
		ID string `json:"id"`
	}
	payload := postPayload{Text: text, Title: item.Title, Source: item.Source, URL: item.URL}
	if err := c.post(ctx, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("webhook response carries no id")
	}
	return map[string]string{Platform: resp.ID}, nil
}

func (c *Client) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
