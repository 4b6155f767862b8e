package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipelinePerTick(t *testing.T) {
	t.Parallel()

	tr := newTracker(t)
	gen := &fakeGenerator{}
	p := NewPipeline(PipelineDeps{
		Tracker:    tr,
		Source:     fakeSource{items: []domain.NewsItem{{Title: "Storm makes landfall in Florida", URL: "https://example.com/storm"}}},
		Generator:  gen,
		Publishers: []ports.Publisher{&fakePublisher{ids: map[string]string{domain.PlatformTelegram: "1"}}},
	})
	driver := &manualDriver{}
	s := NewScheduler(driver, p, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)

	driver.job(now)
	driver.job(now.Add(time.Hour))

	// The second tick sees the recorded story and posts nothing.
	assert.Len(t, tr.History(), 1)
	assert.Len(t, gen.calls, 1)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)

	assert.NoError(t, NewScheduler(nil, p, nil).Start(context.Background()))
}
