package domain

import (
	"strings"
	"time"
)

// NewsItem is a candidate story produced by a source before any decision is made.
type NewsItem struct {
	Topic       string
	Title       string
	Source      string
	URL         string
	Content     string
	PublishedAt time.Time
}

// Headline joins topic and title into the text used for story comparison.
func (n NewsItem) Headline() string {
	return joinNonEmpty(n.Topic, n.Title)
}

// Malformed reports whether the item lacks both a topic and a title.
func (n NewsItem) Malformed() bool {
	return strings.TrimSpace(n.Topic) == "" && strings.TrimSpace(n.Title) == ""
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
