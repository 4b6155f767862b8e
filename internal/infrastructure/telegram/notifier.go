package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier publishes posts to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	limiter  *rate.Limiter
	client   *http.Client
}

var _ ports.Publisher = (*Notifier)(nil)

// NewNotifier registers bot token, chat identifier and send rate.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	limit := rate.Inf
	if cfg.MessagesPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.MessagesPerMinute))
	}
	return &Notifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  apiBase,
		limiter:  rate.NewLimiter(limit, 1),
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Publish sends text with the story link and returns the message id under
// domain.PlatformTelegram.
func (n *Notifier) Publish(ctx context.Context, text string, item domain.NewsItem) (map[string]string, error) {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("telegram rate limit: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", withLink(text, item.URL))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var parsed sendMessageResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && parsed.Description != "" {
			return nil, fmt.Errorf("telegram error: %s: %s", resp.Status, parsed.Description)
		}
		return nil, fmt.Errorf("telegram error: %s", resp.Status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode telegram response: %w", decodeErr)
	}
	if !parsed.OK || parsed.Result.MessageID == 0 {
		return nil, fmt.Errorf("telegram rejected message: %s", parsed.Description)
	}

	return map[string]string{
		domain.PlatformTelegram: strconv.FormatInt(parsed.Result.MessageID, 10),
	}, nil
}

func withLink(text, link string) string {
	text = strings.TrimSpace(text)
	link = strings.TrimSpace(link)
	if link == "" || strings.Contains(text, link) {
		return text
	}
	return text + "\n\n" + link
}
