package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lodgetix/reconcile/internal/config"
	"github.com/lodgetix/reconcile/internal/logging"
	"github.com/lodgetix/reconcile/internal/service"
	"github.com/lodgetix/reconcile/internal/store"
)

func main() {
	var (
		force   = flag.Bool("force", false, "also re-score payments that are already matched")
		limit   = flag.Int("limit", 0, "maximum number of payments to process (0 = no limit)")
		workers = flag.Int("workers", 0, "number of concurrent workers (0 = REPROCESS_WORKERS)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "reprocess")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Store.URI == "" {
		logger.Error("MONGO_URI is required for reprocessing")
		os.Exit(1)
	}
	storeClient, err := store.NewMongoClient(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Error("failed to create store client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storeClient.Close(context.Background()); err != nil {
			logger.Warn("closing store client failed", "error", err)
		}
	}()

	workerCount := *workers
	if workerCount <= 0 {
		workerCount = cfg.Reprocess.Workers
	}

	matchService := service.NewMatchService(storeClient, cfg.MatchConfig(), logger)
	reprocessor := service.NewReprocessor(matchService, storeClient, workerCount, logger)

	start := time.Now()
	report, err := reprocessor.Run(ctx, service.ReprocessOptions{
		Force: *force,
		Limit: *limit,
	})
	if err != nil {
		logger.Error("reprocess run failed", "error", err,
			"processed", report.Processed, "matched", report.Matched, "errors", report.Errors)
		os.Exit(1)
	}

	logger.Info("reprocess run complete",
		"duration", time.Since(start).String(),
		"processed", report.Processed,
		"matched", report.Matched,
		"errors", report.Errors,
	)
	if report.Errors > 0 {
		os.Exit(1)
	}
}
