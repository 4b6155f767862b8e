package ports

import (
	"context"
	"time"

	"github.com/bryanweaver/mewscast/internal/domain"
)

// HistoryStore persists the ordered post history.
type HistoryStore interface {
	// Load returns every record in insertion order. A store that has never
	// been written loads as empty.
	Load(ctx context.Context) ([]domain.PostRecord, error)
	// Append durably adds one record after all existing ones.
	Append(ctx context.Context, record domain.PostRecord) error
	// DeleteBefore drops records posted strictly before cutoff and reports
	// how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// CandidateSource pulls news items from upstream feeds.
type CandidateSource interface {
	Fetch(ctx context.Context) ([]domain.NewsItem, error)
}

// ContentGenerator turns a news item into post text. Updates carry the
// previous coverage through decision.PreviousContext.
type ContentGenerator interface {
	Generate(ctx context.Context, item domain.NewsItem, decision domain.Decision) (string, error)
}

// Publisher sends post text to one or more platforms and returns the
// platform identifiers of what was published.
type Publisher interface {
	Publish(ctx context.Context, text string, item domain.NewsItem) (map[string]string, error)
}

// Scheduler triggers a job repeatedly until stopped.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
