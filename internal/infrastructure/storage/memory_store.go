package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

// MemoryStore is a process-local history, used for dry runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	posts []domain.PostRecord
}

var _ ports.HistoryStore = (*MemoryStore)(nil)

// NewMemoryStore seeds the store with copies of posts.
func NewMemoryStore(posts ...domain.PostRecord) *MemoryStore {
	return &MemoryStore{posts: domain.CloneAll(posts)}
}

func (m *MemoryStore) Load(context.Context) ([]domain.PostRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneAll(m.posts), nil
}

func (m *MemoryStore) Append(_ context.Context, record domain.PostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, record.Clone())
	return nil
}

func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.posts[:0]
	for _, p := range m.posts {
		if !p.PostedAt.Before(cutoff) {
			kept = append(kept, p)
		}
	}
	removed := len(m.posts) - len(kept)
	m.posts = kept
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }
