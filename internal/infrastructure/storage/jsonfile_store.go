package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

// ErrCorruptHistory is returned when a history file holds no readable record.
var ErrCorruptHistory = errors.New("history file is corrupt")

const lockRetryDelay = 50 * time.Millisecond

// JSONFileStore keeps the history in a single JSON document. Writers in
// different processes are serialised with an advisory lock on <path>.lock
// and every mutation re-reads the file under that lock.
type JSONFileStore struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	mu sync.Mutex
}

var _ ports.HistoryStore = (*JSONFileStore)(nil)

// NewJSONFileStore prepares a store for path. Nothing is read until Load.
func NewJSONFileStore(path string, logger *slog.Logger) *JSONFileStore {
	return &JSONFileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// Path returns the history file location.
func (s *JSONFileStore) Path() string { return s.path }

// Load reads every record. A missing or empty file is an empty history.
func (s *JSONFileStore) Load(ctx context.Context) ([]domain.PostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	if err := s.acquire(ctx, true); err != nil {
		return nil, err
	}
	defer s.release()

	return s.read()
}

// Append adds record at the end of the file.
func (s *JSONFileStore) Append(ctx context.Context, record domain.PostRecord) error {
	return s.mutate(ctx, func(posts []domain.PostRecord) []domain.PostRecord {
		return append(posts, record.Clone())
	})
}

// DeleteBefore removes records posted strictly before cutoff.
func (s *JSONFileStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := s.mutate(ctx, func(posts []domain.PostRecord) []domain.PostRecord {
		kept := posts[:0]
		for _, p := range posts {
			if p.PostedAt.Before(cutoff) {
				continue
			}
			kept = append(kept, p)
		}
		removed = len(posts) - len(kept)
		return kept
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close releases the lock file handle.
func (s *JSONFileStore) Close() error {
	return s.lock.Close()
}

func (s *JSONFileStore) mutate(ctx context.Context, fn func([]domain.PostRecord) []domain.PostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.acquire(ctx, false); err != nil {
		return err
	}
	defer s.release()

	posts, err := s.read()
	if err != nil {
		return err
	}
	return s.write(fn(posts))
}

func (s *JSONFileStore) ensureDir() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir %s: %w", dir, err)
	}
	return nil
}

func (s *JSONFileStore) acquire(ctx context.Context, shared bool) error {
	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", s.lock.Path())
	}
	return nil
}

func (s *JSONFileStore) release() {
	if err := s.lock.Unlock(); err != nil && s.logger != nil {
		s.logger.Warn("unlock history", "path", s.lock.Path(), "error", err)
	}
}

func (s *JSONFileStore) read() ([]domain.PostRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", s.path, err)
	}

	posts, err := decodeHistory(data, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return posts, nil
}

func (s *JSONFileStore) write(posts []domain.PostRecord) error {
	doc := historyDocument{Posts: make([]postJSON, 0, len(posts))}
	for _, p := range posts {
		doc.Posts = append(doc.Posts, toPostJSON(p))
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write history %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic writes into a temp file next to name and renames it over
// name, so readers see either the old or the new document.
func writeFileAtomic(name string, data []byte, perm fs.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), name)
}

type historyDocument struct {
	Posts []postJSON `json:"posts"`
}

type postJSON struct {
	ID             string            `json:"id"`
	Topic          string            `json:"topic"`
	Title          string            `json:"title,omitempty"`
	Source         string            `json:"source,omitempty"`
	URL            string            `json:"url,omitempty"`
	ContentExcerpt string            `json:"content_excerpt,omitempty"`
	PostText       string            `json:"post_text,omitempty"`
	PostedAt       time.Time         `json:"posted_at"`
	PlatformIDs    map[string]string `json:"platform_ids,omitempty"`
}

// storedPost accepts both the current layout and the older flat one, where
// the timestamp, post text and per-platform ids were top-level fields.
type storedPost struct {
	ID             string            `json:"id"`
	Topic          string            `json:"topic"`
	Title          string            `json:"title"`
	Source         string            `json:"source"`
	URL            string            `json:"url"`
	ContentExcerpt string            `json:"content_excerpt"`
	PostText       string            `json:"post_text"`
	PostedAt       string            `json:"posted_at"`
	PlatformIDs    map[string]string `json:"platform_ids"`

	Timestamp       string `json:"timestamp"`
	Content         string `json:"content"`
	XTweetID        string `json:"x_tweet_id"`
	XReplyTweetID   string `json:"x_reply_tweet_id"`
	BlueskyURI      string `json:"bluesky_uri"`
	BlueskyReplyURI string `json:"bluesky_reply_uri"`
}

type storedDocument struct {
	Posts []storedPost `json:"posts"`
}

var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

func decodeHistory(data []byte, logger *slog.Logger) ([]domain.PostRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var doc storedDocument
	if err := dec.Decode(&doc); err != nil {
		salvaged, ok := salvagePosts(data)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
		}
		warn(logger, "history truncated, keeping intact records", "records", len(salvaged), "error", err)
		doc.Posts = salvaged
	} else if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		warn(logger, "history has trailing data after the document, ignoring it")
	}

	posts := make([]domain.PostRecord, 0, len(doc.Posts))
	for i, sp := range doc.Posts {
		rec, err := sp.record()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptHistory, i, err)
		}
		posts = append(posts, rec)
	}
	return posts, nil
}

// salvagePosts decodes the intact leading elements of a truncated posts array.
func salvagePosts(data []byte) ([]storedPost, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, false
		}
		if key != "posts" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, false
			}
			continue
		}
		if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
			return nil, false
		}
		var posts []storedPost
		for dec.More() {
			var sp storedPost
			if err := dec.Decode(&sp); err != nil {
				break
			}
			posts = append(posts, sp)
		}
		return posts, len(posts) > 0
	}
	return nil, false
}

// record converts a stored entry. A record without a readable timestamp has
// no age, so it cannot be windowed or pruned and fails the load.
func (sp storedPost) record() (domain.PostRecord, error) {
	rec := domain.PostRecord{
		ID:             sp.ID,
		Topic:          sp.Topic,
		Title:          sp.Title,
		Source:         sp.Source,
		URL:            sp.URL,
		ContentExcerpt: sp.ContentExcerpt,
		PostText:       sp.PostText,
		PlatformIDs:    map[string]string{},
	}
	for k, v := range sp.PlatformIDs {
		if v != "" {
			rec.PlatformIDs[k] = v
		}
	}
	if rec.PostText == "" {
		rec.PostText = sp.Content
	}
	legacyIDs := map[string]string{
		domain.PlatformX:                        sp.XTweetID,
		domain.ReplyKey(domain.PlatformX):       sp.XReplyTweetID,
		domain.PlatformBluesky:                  sp.BlueskyURI,
		domain.ReplyKey(domain.PlatformBluesky): sp.BlueskyReplyURI,
	}
	for k, v := range legacyIDs {
		if _, ok := rec.PlatformIDs[k]; !ok && v != "" {
			rec.PlatformIDs[k] = v
		}
	}

	stamp := sp.PostedAt
	if stamp == "" {
		stamp = sp.Timestamp
	}
	ts, ok := parseTimestamp(stamp)
	if !ok {
		return domain.PostRecord{}, fmt.Errorf("unreadable posted_at %q for %q", stamp, rec.Topic)
	}
	rec.PostedAt = ts

	if rec.ID == "" {
		rec.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(stamp+"|"+rec.URL+"|"+rec.Topic)).String()
	}
	return rec, nil
}

func parseTimestamp(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range legacyLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func toPostJSON(p domain.PostRecord) postJSON {
	out := postJSON{
		ID:             p.ID,
		Topic:          p.Topic,
		Title:          p.Title,
		Source:         p.Source,
		URL:            p.URL,
		ContentExcerpt: p.ContentExcerpt,
		PostText:       p.PostText,
		PostedAt:       p.PostedAt.UTC(),
	}
	if len(p.PlatformIDs) > 0 {
		out.PlatformIDs = p.PlatformIDs
	}
	return out
}

func warn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
