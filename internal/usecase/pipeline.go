package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
	"github.com/bryanweaver/mewscast/internal/tracker"
)

const defaultMaxAttempts = 3

// Skip reasons reported in RunResult.
const (
	SkipGenerateFailed   = "generate_failed"
	SkipDuplicateContent = "duplicate_content"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Tracker    *tracker.Tracker
	Source     ports.CandidateSource
	Generator  ports.ContentGenerator
	Publishers []ports.Publisher
	Logger     *slog.Logger
	// DryRun stops after the content check; nothing is published or recorded.
	DryRun bool
	// MaxAttempts bounds how many eligible candidates one run may try.
	MaxAttempts int
}

// Pipeline implements one fetch-check-generate-publish-record cycle.
type Pipeline struct {
	tracker     *tracker.Tracker
	source      ports.CandidateSource
	generator   ports.ContentGenerator
	publishers  []ports.Publisher
	logger      *slog.Logger
	dryRun      bool
	maxAttempts int
}

// Skip records a candidate the run passed over.
type Skip struct {
	Item   domain.NewsItem
	Reason string
	Err    error
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Fetched  int
	Eligible int
	Skipped  []Skip

	// Item, Decision and Text describe the chosen candidate, if any.
	Item     domain.NewsItem
	Decision domain.Decision
	Text     string
	// Posted is set once the post was published and recorded.
	Posted *domain.PostRecord
	DryRun bool
}

// Chosen reports whether the run selected a candidate.
func (r RunResult) Chosen() bool {
	return r.Text != ""
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Pipeline{
		tracker:     deps.Tracker,
		source:      deps.Source,
		generator:   deps.Generator,
		publishers:  deps.Publishers,
		logger:      deps.Logger,
		dryRun:      deps.DryRun,
		maxAttempts: attempts,
	}
}

// Run fetches candidates, drops story duplicates, and publishes the first
// candidate whose generated text is not a repeat of a recent post. Updates
// are generated with their previous coverage. A publish failure abandons the
// candidate without recording it.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	var result RunResult
	result.DryRun = p.dryRun

	if p.tracker == nil || p.source == nil || p.generator == nil {
		return result, fmt.Errorf("pipeline misconfigured: tracker, source and generator are required")
	}
	if !p.dryRun && len(p.publishers) == 0 {
		return result, fmt.Errorf("pipeline misconfigured: no publishers")
	}

	items, err := p.source.Fetch(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch candidates: %w", err)
	}
	result.Fetched = len(items)

	candidates := p.tracker.FilterDuplicates(items)
	result.Eligible = len(candidates)
	p.info("candidates checked", "fetched", len(items), "eligible", len(candidates))

	for i, candidate := range candidates {
		if i >= p.maxAttempts {
			break
		}
		item, decision := candidate.Item, candidate.Decision

		text, err := p.generator.Generate(ctx, item, decision)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			p.warn("generation failed", "title", item.Title, "error", err)
			result.Skipped = append(result.Skipped, Skip{Item: item, Reason: SkipGenerateFailed, Err: err})
			continue
		}

		if verdict := p.tracker.CheckPostContent(text); verdict.Duplicate {
			p.info("generated text repeats a recent post", "title", item.Title, "score", verdict.Score)
			result.Skipped = append(result.Skipped, Skip{Item: item, Reason: SkipDuplicateContent})
			continue
		}

		result.Item, result.Decision, result.Text = item, decision, text
		if p.dryRun {
			p.info("dry run: would publish",
				"title", item.Title,
				"status", decision.Status,
				"reason", decision.Reason,
				"text", text,
			)
			return result, nil
		}

		ids, err := p.publish(ctx, text, item)
		if err != nil {
			return result, fmt.Errorf("publish %q: %w", item.Title, err)
		}

		record, err := p.tracker.RecordPost(ctx, item, ids, tracker.WithPostText(text))
		if err != nil {
			return result, fmt.Errorf("record published post %q: %w", item.Title, err)
		}
		result.Posted = &record
		p.info("post published", "id", record.ID, "status", decision.Status, "platforms", len(ids))
		return result, nil
	}

	p.info("nothing to post", "eligible", len(candidates), "skipped", len(result.Skipped))
	return result, nil
}

// publish fans out to every publisher. It fails only when nothing was
// published anywhere; partial failures are logged and the surviving ids kept.
func (p *Pipeline) publish(ctx context.Context, text string, item domain.NewsItem) (map[string]string, error) {
	ids := map[string]string{}
	var failures []error
	for _, pub := range p.publishers {
		got, err := pub.Publish(ctx, text, item)
		if err != nil {
			failures = append(failures, err)
			p.warn("publisher failed", "title", item.Title, "error", err)
			continue
		}
		maps.Copy(ids, got)
	}
	if len(ids) == 0 {
		if len(failures) == 0 {
			return nil, fmt.Errorf("publishers returned no ids")
		}
		return nil, errors.Join(failures...)
	}
	return ids, nil
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
