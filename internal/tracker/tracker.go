// Package tracker decides whether a candidate story is fresh, a duplicate of
// something already posted, or a genuine update, and keeps the post history
// those decisions are made against.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
	"github.com/bryanweaver/mewscast/internal/similarity"
)

// Tracker owns the in-memory post history and the decision policy.
type Tracker struct {
	store      ports.HistoryStore
	cfg        Config
	classifier *Classifier
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	mu    sync.RWMutex
	posts []domain.PostRecord
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator replaces the UUID generator for record ids.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) { t.newID = gen }
}

// Candidate pairs a news item with the decision made for it.
type Candidate struct {
	Item     domain.NewsItem
	Decision domain.Decision
}

// New loads the history from store. A load failure is returned as is; the
// caller decides whether it is fatal.
func New(ctx context.Context, store ports.HistoryStore, cfg Config, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("tracker: history store is required")
	}
	t := &Tracker{
		store:      store,
		cfg:        cfg,
		classifier: NewClassifier(cfg),
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload replaces the in-memory history with what the store holds.
func (t *Tracker) Reload(ctx context.Context) error {
	posts, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	t.mu.Lock()
	t.posts = posts
	t.mu.Unlock()
	t.debug("history loaded", "posts", len(posts))
	return nil
}

// CheckStoryStatus classifies candidate against the current history. It
// never mutates state and gives the same answer until the history changes.
func (t *Tracker) CheckStoryStatus(candidate domain.NewsItem) domain.Decision {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.check(candidate, t.posts, t.now().UTC())
}

func (t *Tracker) check(candidate domain.NewsItem, history []domain.PostRecord, now time.Time) domain.Decision {
	var cluster []domain.ClusterMember
	if t.cfg.Enabled {
		cluster = FindCluster(candidate, history, now, t.cfg)
	}
	decision := t.classifier.Classify(candidate, cluster, history, now)
	t.debug("story checked",
		"title", candidate.Title,
		"status", decision.Status,
		"reason", decision.Reason,
		"cluster", len(decision.Cluster),
		"keyword", decision.MatchedKeyword,
	)
	return decision
}

// FilterDuplicates checks every candidate against the same history snapshot
// and keeps the ones that are not duplicates, in input order.
func (t *Tracker) FilterDuplicates(candidates []domain.NewsItem) []Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now().UTC()
	kept := make([]Candidate, 0, len(candidates))
	for _, item := range candidates {
		decision := t.check(item, t.posts, now)
		if decision.IsDuplicate() {
			continue
		}
		kept = append(kept, Candidate{Item: item, Decision: decision})
	}
	t.debug("candidates filtered", "in", len(candidates), "kept", len(kept))
	return kept
}

// CheckPostContent compares generated post text with the text of posts
// published inside the content cooldown.
func (t *Tracker) CheckPostContent(text string) domain.ContentVerdict {
	if !t.cfg.Enabled || strings.TrimSpace(text) == "" {
		return domain.ContentVerdict{}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := t.now().UTC().Add(-t.cfg.ContentCooldown)
	var verdict domain.ContentVerdict
	for i := range t.posts {
		post := &t.posts[i]
		if post.PostText == "" || post.PostedAt.Before(cutoff) {
			continue
		}
		score := similarity.ContentSimilarity(text, post.PostText)
		if score > verdict.Score {
			match := post.Clone()
			verdict.Score = score
			verdict.Match = &match
		}
	}
	verdict.Duplicate = verdict.Match != nil && verdict.Score >= t.cfg.ContentThreshold
	if verdict.Duplicate {
		t.debug("post content duplicate", "score", verdict.Score, "match", verdict.Match.ID)
	}
	return verdict
}

// SourcePosted reports whether anything from source was posted within the window.
func (t *Tracker) SourcePosted(source string, within time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sourcePostedSince(t.posts, source, t.now().UTC().Add(-within))
}

// RecordOption customises the record built by RecordPost.
type RecordOption func(*domain.PostRecord)

// WithPostText stores the published text for later content checks.
func WithPostText(text string) RecordOption {
	return func(r *domain.PostRecord) { r.PostText = text }
}

// RecordPost appends a record for a published candidate. The store is
// written first; if that fails the in-memory history is left untouched.
func (t *Tracker) RecordPost(ctx context.Context, candidate domain.NewsItem, platformIDs map[string]string, opts ...RecordOption) (domain.PostRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record := domain.PostRecord{
		ID:             t.newID(),
		Topic:          strings.TrimSpace(candidate.Topic),
		Title:          strings.TrimSpace(candidate.Title),
		Source:         strings.TrimSpace(candidate.Source),
		URL:            strings.TrimSpace(candidate.URL),
		ContentExcerpt: truncateRunes(strings.TrimSpace(candidate.Content), t.cfg.ExcerptLength),
		PostedAt:       t.now().UTC(),
		PlatformIDs:    copyIDs(platformIDs),
	}
	for _, opt := range opts {
		opt(&record)
	}
	if n := len(t.posts); n > 0 && record.PostedAt.Before(t.posts[n-1].PostedAt) {
		record.PostedAt = t.posts[n-1].PostedAt
	}

	if err := t.store.Append(ctx, record); err != nil {
		return domain.PostRecord{}, fmt.Errorf("persist post %s: %w", record.ID, err)
	}
	t.posts = append(t.posts, record)
	t.info("post recorded", "id", record.ID, "title", record.Title, "url", record.URL)

	if t.cfg.AutoPrune && t.cfg.Retention > 0 {
		if _, err := t.pruneLocked(ctx, t.cfg.Retention); err != nil {
			t.warn("auto prune failed", "error", err)
		}
	}
	return record.Clone(), nil
}

// Prune drops records posted before now minus olderThan and reports how many
// were removed. Surviving records keep their order.
func (t *Tracker) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pruneLocked(ctx, olderThan)
}

func (t *Tracker) pruneLocked(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := t.now().UTC().Add(-olderThan)

	kept := make([]domain.PostRecord, 0, len(t.posts))
	for _, post := range t.posts {
		if post.PostedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, post)
	}
	removed := len(t.posts) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if _, err := t.store.DeleteBefore(ctx, cutoff); err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	t.posts = kept
	t.info("history pruned", "removed", removed, "remaining", len(kept))
	return removed, nil
}

// PostsNeedingReplies returns records with a source URL that have a post id
// on platform but no reply id yet.
func (t *Tracker) PostsNeedingReplies(platform string) []domain.PostRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.PostRecord
	for _, post := range t.posts {
		if post.URL == "" || post.PlatformIDs[platform] == "" {
			continue
		}
		if post.PlatformIDs[domain.ReplyKey(platform)] != "" {
			continue
		}
		out = append(out, post.Clone())
	}
	return out
}

// History returns a copy of every record in insertion order.
func (t *Tracker) History() []domain.PostRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return domain.CloneAll(t.posts)
}

func copyIDs(ids map[string]string) map[string]string {
	out := make(map[string]string, len(ids))
	for k, v := range ids {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

func (t *Tracker) debug(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, args...)
	}
}

func (t *Tracker) info(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Info(msg, args...)
	}
}

func (t *Tracker) warn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
