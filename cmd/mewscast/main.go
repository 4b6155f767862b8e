package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanweaver/mewscast/internal/app"
	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/logging"
)

func main() {
	var opts app.Options
	flag.BoolVar(&opts.DryRun, "dry-run", false, "check and generate without publishing or writing history")
	flag.BoolVar(&opts.Prune, "prune", false, "drop history records older than the retention before running")
	flag.BoolVar(&opts.Once, "once", false, "run a single pass even when a scheduler interval is configured")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("mewscast: %v", err)
	}
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}

	runErr := application.Run(ctx)
	if err := application.Close(); err != nil {
		logger.Warn("close history store", "error", err)
	}
	if runErr != nil {
		logger.Error("application stopped", "error", runErr)
		os.Exit(1)
	}
}
