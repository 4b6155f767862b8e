package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/scanner"
)

const (
	userAgent        = "mewscast/1.0"
	optionLimit      = "limit"
	sourceTitleSplit = " - "
)

// RSSScanner reads RSS and Atom feeds configured as site categories.
type RSSScanner struct {
	client *http.Client
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ scanner.Scanner = (*RSSScanner)(nil)

// NewRSSScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewRSSScanner(client *http.Client, logger *slog.Logger) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSScanner{client: client, parser: gofeed.NewParser(), logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan fetches every category feed and returns its items in feed order,
// skipping entries without a link or title and entries older than req.Since.
// The "limit" option caps items taken per category.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.NewsItem, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	limit := 0
	if raw := req.Options[optionLimit]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("site %s: invalid %s option %q", req.SiteName, optionLimit, raw)
		}
		limit = n
	}

	var items []domain.NewsItem
	seen := map[string]struct{}{}
	for _, cat := range req.Categories {
		feed, err := s.fetchFeed(ctx, cat.URL)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		taken := 0
		for _, entry := range feed.Items {
			if limit > 0 && taken >= limit {
				break
			}
			item, ok := toNewsItem(entry, req.SiteName)
			if !ok {
				continue
			}
			if !req.Since.IsZero() && !item.PublishedAt.IsZero() && item.PublishedAt.Before(req.Since) {
				continue
			}
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			items = append(items, item)
			taken++
		}
		s.debug("category scanned", "site", req.SiteName, "category", cat.Name, "entries", len(feed.Items), "taken", taken)
	}
	return items, nil
}

func (s *RSSScanner) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// toNewsItem maps a feed entry. Aggregator titles of the form
// "Headline - Publisher" are split so the publisher becomes the source.
func toNewsItem(entry *gofeed.Item, site string) (domain.NewsItem, bool) {
	title := PlainText(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if title == "" || link == "" {
		return domain.NewsItem{}, false
	}

	source := site
	if i := strings.LastIndex(title, sourceTitleSplit); i > 0 {
		if publisher := strings.TrimSpace(title[i+len(sourceTitleSplit):]); publisher != "" && len(strings.Fields(publisher)) <= 4 {
			source = publisher
			title = strings.TrimSpace(title[:i])
		}
	}

	body := entry.Content
	if strings.TrimSpace(body) == "" {
		body = entry.Description
	}

	item := domain.NewsItem{
		Title:   title,
		Source:  source,
		URL:     link,
		Content: PlainText(body),
	}
	if entry.PublishedParsed != nil {
		item.PublishedAt = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		item.PublishedAt = entry.UpdatedParsed.UTC()
	}
	return item, true
}

func (s *RSSScanner) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
