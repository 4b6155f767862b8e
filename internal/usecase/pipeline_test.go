package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/infrastructure/storage"
	"github.com/bryanweaver/mewscast/internal/ports"
	"github.com/bryanweaver/mewscast/internal/tracker"
)

var now = time.Date(2025, 11, 21, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	items []domain.NewsItem
	err   error
}

func (f fakeSource) Fetch(context.Context) ([]domain.NewsItem, error) {
	return f.items, f.err
}

type generated struct {
	item     domain.NewsItem
	decision domain.Decision
}

type fakeGenerator struct {
	texts map[string]string
	errs  map[string]error
	calls []generated
}

func (f *fakeGenerator) Generate(_ context.Context, item domain.NewsItem, decision domain.Decision) (string, error) {
	f.calls = append(f.calls, generated{item: item, decision: decision})
	if err := f.errs[item.Title]; err != nil {
		return "", err
	}
	if text, ok := f.texts[item.Title]; ok {
		return text, nil
	}
	return "Mews flash: " + item.Title, nil
}

type fakePublisher struct {
	ids   map[string]string
	err   error
	texts []string
}

func (f *fakePublisher) Publish(_ context.Context, text string, _ domain.NewsItem) (map[string]string, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func newTracker(t *testing.T, history ...domain.PostRecord) *tracker.Tracker {
	t.Helper()
	tr, err := tracker.New(context.Background(), storage.NewMemoryStore(history...), tracker.DefaultConfig(), nil,
		tracker.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return tr
}

func TestPipelinePublishesFirstEligible(t *testing.T) {
	t.Parallel()

	seen := domain.PostRecord{ID: "p1", Topic: "Old topic", Title: "Museum reopens", URL: "https://example.com/museum", PostedAt: now.Add(-2 * time.Hour)}
	tr := newTracker(t, seen)
	gen := &fakeGenerator{}
	telegram := &fakePublisher{ids: map[string]string{domain.PlatformTelegram: "11"}}
	hook := &fakePublisher{ids: map[string]string{"webhook": "w-1"}}

	p := NewPipeline(PipelineDeps{
		Tracker: tr,
		Source: fakeSource{items: []domain.NewsItem{
			{Title: "Museum reopens", URL: "https://example.com/museum"},
			{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm", Source: "Reuters"},
			{Title: "Stock market rallies", URL: "https://example.com/stocks"},
		}},
		Generator:  gen,
		Publishers: []ports.Publisher{telegram, hook},
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Eligible)
	require.NotNil(t, res.Posted)
	assert.Equal(t, "https://example.com/storm", res.Posted.URL)
	assert.Equal(t, "Mews flash: Storm makes landfall in Florida", res.Posted.PostText)
	assert.Equal(t, map[string]string{domain.PlatformTelegram: "11", "webhook": "w-1"}, res.Posted.PlatformIDs)
	assert.Equal(t, domain.StatusFresh, res.Decision.Status)

	require.Len(t, gen.calls, 1)
	assert.Len(t, telegram.texts, 1)
	assert.Len(t, tr.History(), 2)

	// The recorded story is now a duplicate for the next run.
	assert.True(t, tr.CheckStoryStatus(domain.NewsItem{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm"}).IsDuplicate())
}

func TestPipelinePassesUpdateContext(t *testing.T) {
	t.Parallel()

	seed := domain.PostRecord{
		ID:             "seed",
		Topic:          "Trump sedition",
		Title:          "Trump: Dems video seditious",
		ContentExcerpt: "The president called the video seditious.",
		URL:            "https://example.com/a",
		PostedAt:       now.Add(-20 * time.Hour),
	}
	tr := newTracker(t, seed)
	gen := &fakeGenerator{}
	p := NewPipeline(PipelineDeps{
		Tracker: tr,
		Source: fakeSource{items: []domain.NewsItem{{
			Title: "Trump says he wasn't threatening after calling Dems video seditious",
			URL:   "https://example.com/b",
		}}},
		Generator:  gen,
		Publishers: []ports.Publisher{&fakePublisher{ids: map[string]string{domain.PlatformTelegram: "1"}}},
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Posted)
	require.Len(t, gen.calls, 1)

	decision := gen.calls[0].decision
	require.True(t, decision.IsUpdate())
	prev := decision.PreviousContext()
	require.Len(t, prev, 1)
	assert.Equal(t, "Trump: Dems video seditious", prev[0].Title)
	assert.Equal(t, "The president called the video seditious.", prev[0].ContentExcerpt)
}

func TestPipelineSkipsRepeatedContent(t *testing.T) {
	t.Parallel()

	old := domain.PostRecord{
		ID:       "p1",
		Topic:    "Capitol policy",
		URL:      "https://example.com/capitol",
		PostText: "Breaking news from the capitol today regarding major policy changes.",
		PostedAt: now.Add(-time.Hour),
	}
	tr := newTracker(t, old)
	gen := &fakeGenerator{
		texts: map[string]string{"Storm makes landfall in Florida": old.PostText},
		errs:  map[string]error{"Quake rattles Alaska": errors.New("model overloaded")},
	}
	pub := &fakePublisher{ids: map[string]string{domain.PlatformTelegram: "5"}}
	p := NewPipeline(PipelineDeps{
		Tracker: tr,
		Source: fakeSource{items: []domain.NewsItem{
			{Title: "Quake rattles Alaska", URL: "https://example.com/quake"},
			{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm"},
			{Title: "Stock market rallies", URL: "https://example.com/stocks"},
		}},
		Generator:  gen,
		Publishers: []ports.Publisher{pub},
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, SkipGenerateFailed, res.Skipped[0].Reason)
	assert.Equal(t, SkipDuplicateContent, res.Skipped[1].Reason)
	require.NotNil(t, res.Posted)
	assert.Equal(t, "https://example.com/stocks", res.Posted.URL)
	assert.Equal(t, []string{"Mews flash: Stock market rallies"}, pub.texts)
}

func TestPipelineMaxAttempts(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{errs: map[string]error{
		"Quake rattles Alaska": errors.New("boom"),
		"Stock market rallies": errors.New("boom"),
	}}
	p := NewPipeline(PipelineDeps{
		Tracker: newTracker(t),
		Source: fakeSource{items: []domain.NewsItem{
			{Title: "Quake rattles Alaska", URL: "https://example.com/quake"},
			{Title: "Stock market rallies", URL: "https://example.com/stocks"},
			{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm"},
		}},
		Generator:   gen,
		Publishers:  []ports.Publisher{&fakePublisher{ids: map[string]string{"x": "1"}}},
		MaxAttempts: 2,
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Posted)
	assert.False(t, res.Chosen())
	assert.Len(t, gen.calls, 2)
}

func TestPipelinePublishFailureIsNotRecorded(t *testing.T) {
	t.Parallel()

	tr := newTracker(t)
	p := NewPipeline(PipelineDeps{
		Tracker:    tr,
		Source:     fakeSource{items: []domain.NewsItem{{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm"}}},
		Generator:  &fakeGenerator{},
		Publishers: []ports.Publisher{&fakePublisher{err: errors.New("rate limited")}},
	})

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res.Posted)
	assert.Empty(t, tr.History())
}

func TestPipelinePartialPublishIsRecorded(t *testing.T) {
	t.Parallel()

	tr := newTracker(t)
	p := NewPipeline(PipelineDeps{
		Tracker:   tr,
		Source:    fakeSource{items: []domain.NewsItem{{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm"}}},
		Generator: &fakeGenerator{},
		Publishers: []ports.Publisher{
			&fakePublisher{err: errors.New("down")},
			&fakePublisher{ids: map[string]string{domain.PlatformBluesky: "at://post/1"}},
		},
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Posted)
	assert.Equal(t, map[string]string{domain.PlatformBluesky: "at://post/1"}, res.Posted.PlatformIDs)
}

func TestPipelineDryRun(t *testing.T) {
	t.Parallel()

	tr := newTracker(t)
	p := NewPipeline(PipelineDeps{
		Tracker:   tr,
		Source:    fakeSource{items: []domain.NewsItem{{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm"}}},
		Generator: &fakeGenerator{},
		DryRun:    true,
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.True(t, res.Chosen())
	assert.Nil(t, res.Posted)
	assert.Empty(t, tr.History())
}

func TestPipelineErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := NewPipeline(PipelineDeps{}).Run(ctx)
	require.Error(t, err)

	_, err = NewPipeline(PipelineDeps{Tracker: newTracker(t), Source: fakeSource{}, Generator: &fakeGenerator{}}).Run(ctx)
	require.Error(t, err, "publishing without publishers")

	boom := errors.New("feeds down")
	_, err = NewPipeline(PipelineDeps{
		Tracker:   newTracker(t),
		Source:    fakeSource{err: boom},
		Generator: &fakeGenerator{},
		DryRun:    true,
	}).Run(ctx)
	assert.ErrorIs(t, err, boom)
}
