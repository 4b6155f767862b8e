package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

// HeadlineGenerator builds post text from the item alone. It backs dry runs
// when no model credentials are configured.
type HeadlineGenerator struct {
	MaxChars int
}

var _ ports.ContentGenerator = HeadlineGenerator{}

// Generate never fails for items with a title.
func (g HeadlineGenerator) Generate(_ context.Context, item domain.NewsItem, decision domain.Decision) (string, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = strings.TrimSpace(item.Topic)
	}
	if title == "" {
		return "", fmt.Errorf("item has no title")
	}

	text := title
	if decision.IsUpdate() {
		text = "UPDATE: " + text
	}
	if item.Source != "" {
		text += " (" + item.Source + ")"
	}
	return clip(text, g.MaxChars), nil
}
