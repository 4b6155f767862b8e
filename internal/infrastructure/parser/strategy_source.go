package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
	"github.com/bryanweaver/mewscast/internal/scanner"
)

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sites.
// Items older than maxAge are dropped; zero keeps everything.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, maxAge time.Duration, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   log,
	}
}

// Fetch runs every configured site. A failing site is logged and skipped;
// an error is returned only when no site succeeded.
func (s *StrategySource) Fetch(ctx context.Context) ([]domain.NewsItem, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	var since time.Time
	if s.maxAge > 0 {
		since = s.now().UTC().Add(-s.maxAge)
	}
	s.debug("fetch candidates", "sites", len(s.sites), "since", since)

	var (
		aggregated []domain.NewsItem
		failures   []error
		seen       = map[string]struct{}{}
	)
	for _, site := range s.sites {
		s.debug("process site", "site", site.Name, "scanner", site.Scanner, "categories", len(site.Categories))
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			failures = append(failures, fmt.Errorf("site %s: %w", site.Name, err))
			continue
		}

		results, err := strategy.Scan(ctx, scanner.Request{
			Since:      since,
			SiteName:   site.Name,
			Options:    site.Options,
			Categories: toScannerCategories(site.Categories),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, fmt.Errorf("scan site %s: %w", site.Name, err))
			if s.logger != nil {
				s.logger.Warn("site scan failed", "site", site.Name, "error", err)
			}
			continue
		}

		for _, item := range results {
			if item.Source == "" {
				item.Source = site.Name
			}
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			aggregated = append(aggregated, item)
		}
		s.debug("site produced items", "site", site.Name, "count", len(results))
	}

	if len(failures) > 0 && len(failures) == len(s.sites) {
		return nil, errors.Join(failures...)
	}
	s.debug("strategy source done", "total_items", len(aggregated))
	return aggregated, nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
