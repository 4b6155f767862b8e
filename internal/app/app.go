package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/infrastructure/llm"
	"github.com/bryanweaver/mewscast/internal/infrastructure/parser"
	"github.com/bryanweaver/mewscast/internal/infrastructure/scheduler"
	"github.com/bryanweaver/mewscast/internal/infrastructure/storage"
	"github.com/bryanweaver/mewscast/internal/infrastructure/telegram"
	"github.com/bryanweaver/mewscast/internal/infrastructure/webhook"
	"github.com/bryanweaver/mewscast/internal/logging"
	"github.com/bryanweaver/mewscast/internal/ports"
	"github.com/bryanweaver/mewscast/internal/scanner"
	"github.com/bryanweaver/mewscast/internal/tracker"
	"github.com/bryanweaver/mewscast/internal/usecase"
)

const stopTimeout = 30 * time.Second

// Options are the per-invocation switches from the command line.
type Options struct {
	// DryRun checks and generates but never publishes or writes history.
	DryRun bool
	// Prune drops records older than the retention before the run.
	Prune bool
	// Once ignores the configured scheduler interval.
	Once bool
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	opts      Options
	logger    *slog.Logger
	store     ports.HistoryStore
	tracker   *tracker.Tracker
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New opens the history store, loads the tracker and builds the pipeline.
// A history that cannot be read is fatal.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Storage, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, err
	}

	tr, err := tracker.New(ctx, store, cfg.Deduplication.Tracker(), baseLogger.With("component", "tracker"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init tracker: %w", err)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSScanner(nil, baseLogger.With("component", "scanner.rss")))
	source := parser.NewStrategySource(registry, cfg.Sites, cfg.Sources.MaxAge(), baseLogger.With("component", "source"))

	var generator ports.ContentGenerator
	switch {
	case cfg.ChatGPT.APIKey != "":
		generator = llm.NewChatGPTClient(cfg.ChatGPT)
	case opts.DryRun:
		baseLogger.Info("no chatgpt api key, dry run uses headline text")
		generator = llm.HeadlineGenerator{MaxChars: cfg.ChatGPT.MaxChars}
	default:
		_ = store.Close()
		return nil, errors.New("chatgpt api key is required to publish")
	}

	var publishers []ports.Publisher
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		publishers = append(publishers, telegram.NewNotifier(tg))
	}
	if hook := cfg.Notifications.Webhook; hook.URL != "" {
		publishers = append(publishers, webhook.NewClient(hook))
	}
	if len(publishers) == 0 && !opts.DryRun {
		_ = store.Close()
		return nil, errors.New("no publisher configured: set telegram or webhook credentials")
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Tracker:    tr,
		Source:     source,
		Generator:  generator,
		Publishers: publishers,
		Logger:     baseLogger.With("component", "pipeline"),
		DryRun:     opts.DryRun,
	})

	application := &Application{
		cfg:      cfg,
		opts:     opts,
		logger:   baseLogger,
		store:    store,
		tracker:  tr,
		pipeline: pipeline,
	}
	if interval := cfg.Scheduler.Interval(); interval > 0 && !opts.Once {
		application.scheduler = usecase.NewScheduler(
			scheduler.NewIntervalScheduler(interval),
			pipeline,
			baseLogger.With("component", "scheduler"),
		)
	}
	return application, nil
}

// Tracker exposes the loaded tracker.
func (a *Application) Tracker() *tracker.Tracker {
	return a.tracker
}

// Run performs one pipeline execution, or keeps running on the configured
// interval until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if a.opts.Prune {
		retention := a.cfg.Deduplication.Tracker().Retention
		switch {
		case a.opts.DryRun:
			a.logger.Info("dry run: prune skipped")
		case retention <= 0:
			a.logger.Info("no retention configured: prune skipped")
		default:
			removed, err := a.tracker.Prune(ctx, retention)
			if err != nil {
				return fmt.Errorf("prune history: %w", err)
			}
			a.logger.Info("history pruned", "removed", removed)
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return a.scheduler.Stop(stopCtx)
	}

	res, err := a.pipeline.Run(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("run finished",
		"fetched", res.Fetched,
		"eligible", res.Eligible,
		"skipped", len(res.Skipped),
		"posted", res.Posted != nil,
		"dry_run", res.DryRun,
	)
	return nil
}

// Close releases the history store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (ports.HistoryStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendJSONFile:
		return storage.NewJSONFileStore(cfg.Path, logger), nil
	case config.BackendSQLite:
		store, err := storage.OpenSQLite(ctx, cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := storage.OpenPostgres(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres history: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
