package tracker

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/similarity"
)

type keywordMatcher struct {
	class   string
	keyword string
	expr    *regexp.Regexp
}

// Classifier turns a candidate and its cluster into a Decision.
type Classifier struct {
	cfg      Config
	matchers []keywordMatcher
}

// NewClassifier compiles the configured keyword classes. Classes and keywords
// are matched in sorted order so the reported keyword is stable.
func NewClassifier(cfg Config) *Classifier {
	classes := make([]string, 0, len(cfg.KeywordClasses))
	for class := range cfg.KeywordClasses {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	c := &Classifier{cfg: cfg}
	for _, class := range classes {
		for _, kw := range cfg.KeywordClasses[class] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			words := strings.Fields(kw)
			for i, w := range words {
				words[i] = regexp.QuoteMeta(w)
			}
			pattern := `(?i)(^|[^\p{L}\p{N}])` + strings.Join(words, `\s+`) + `($|[^\p{L}\p{N}])`
			c.matchers = append(c.matchers, keywordMatcher{
				class:   class,
				keyword: kw,
				expr:    regexp.MustCompile(pattern),
			})
		}
	}
	return c
}

// MatchKeyword reports the first update keyword found in title.
func (c *Classifier) MatchKeyword(title string) (class, keyword string, ok bool) {
	for _, m := range c.matchers {
		if m.expr.MatchString(title) {
			return m.class, m.keyword, true
		}
	}
	return "", "", false
}

// Classify applies the decision rules in order. history is the full,
// unwindowed post history; cluster comes from FindCluster.
func (c *Classifier) Classify(candidate domain.NewsItem, cluster []domain.ClusterMember, history []domain.PostRecord, now time.Time) domain.Decision {
	if !c.cfg.Enabled {
		return domain.Decision{Status: domain.StatusFresh, Reason: domain.ReasonDisabled}
	}

	if c.cfg.URLDeduplication && strings.TrimSpace(candidate.URL) != "" {
		for _, post := range history {
			if similarity.SameURL(candidate.URL, post.URL) {
				return domain.Decision{
					Status:  domain.StatusDuplicate,
					Reason:  domain.ReasonExactURL,
					Cluster: []domain.ClusterMember{{Post: post.Clone(), Score: 1}},
				}
			}
		}
	}

	if c.cfg.SourceCooldown > 0 && sourcePostedSince(history, candidate.Source, now.Add(-c.cfg.SourceCooldown)) {
		return domain.Decision{Status: domain.StatusDuplicate, Reason: domain.ReasonSourceCooldown}
	}

	if candidate.Malformed() {
		return domain.Decision{Status: domain.StatusFresh, Reason: domain.ReasonMalformed}
	}

	if len(cluster) == 0 {
		return domain.Decision{Status: domain.StatusFresh, Reason: domain.ReasonNoCluster}
	}

	if class, kw, ok := c.MatchKeyword(candidate.Title); ok {
		return domain.Decision{
			Status:         domain.StatusUpdate,
			Reason:         domain.ReasonUpdateKeyword,
			MatchedKeyword: kw,
			KeywordClass:   class,
			Cluster:        cluster,
			Related:        mostRecentFirst(cluster),
		}
	}

	var top float64
	for _, m := range cluster {
		top = max(top, m.Score)
	}
	if top > c.cfg.DuplicateThreshold {
		return domain.Decision{Status: domain.StatusDuplicate, Reason: domain.ReasonSimilarStory, Cluster: cluster}
	}
	return domain.Decision{Status: domain.StatusFresh, Reason: domain.ReasonWeakCluster, Cluster: cluster}
}

func sourcePostedSince(history []domain.PostRecord, source string, since time.Time) bool {
	source = strings.TrimSpace(source)
	if source == "" {
		return false
	}
	for _, post := range history {
		if strings.EqualFold(strings.TrimSpace(post.Source), source) && !post.PostedAt.Before(since) {
			return true
		}
	}
	return false
}
