package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lodgetix/reconcile/internal/config"
	"github.com/lodgetix/reconcile/internal/domain"
	"github.com/lodgetix/reconcile/internal/logging"
	"github.com/lodgetix/reconcile/internal/store"
)

var errMissingDataset = errors.New("dataset not found")

func main() {
	var (
		datasetDir    = flag.String("dataset-dir", "./seed-data", "Directory containing registrations.json and payments.json")
		registrations = flag.String("registrations", "", "Path to registrations.json (overrides dataset-dir)")
		payments      = flag.String("payments", "", "Path to payments.json (overrides dataset-dir)")
		workers       = flag.Int("workers", 4, "Number of concurrent workers for ingestion")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "ingest")

	regFile, payFile, err := resolveDatasetPaths(*datasetDir, *registrations, *payments)
	if err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}

	var regs []domain.Registration
	if err := loadJSON(regFile, &regs); err != nil {
		logger.Error("failed to load registrations", "error", err, "path", regFile)
		os.Exit(1)
	}
	if len(regs) == 0 {
		logger.Error("registrations dataset empty", "path", regFile)
		os.Exit(1)
	}

	var pays []domain.Payment
	if err := loadJSON(payFile, &pays); err != nil {
		logger.Error("failed to load payments", "error", err, "path", payFile)
		os.Exit(1)
	}
	if len(pays) == 0 {
		logger.Error("payments dataset empty", "path", payFile)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Store.URI == "" {
		logger.Error("MONGO_URI is required for ingestion")
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

	start := time.Now()
	logger.Info("ingesting registrations", "count", len(regs), "workers", *workers)
	failed := upsertAll(ctx, *workers, len(regs), func(i int) error {
		return storeClient.UpsertRegistration(ctx, regs[i])
	})

	logger.Info("ingesting payments", "count", len(pays))
	failed += upsertAll(ctx, *workers, len(pays), func(i int) error {
		return storeClient.UpsertPayment(ctx, pays[i])
	})

	if failed > 0 {
		logger.Error("ingestion finished with failures", "failed", failed, "duration", time.Since(start).String())
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"duration", time.Since(start).String(),
		"registrations", len(regs),
		"payments", len(pays),
	)
}

// upsertAll fans n indexed upserts out over a worker pool and returns the
// number of failures.
func upsertAll(ctx context.Context, workers, n int, upsert func(i int) error) int64 {
	if workers <= 0 {
		workers = 1
	}

	indexCh := make(chan int)
	var wg sync.WaitGroup
	var failed atomic.Int64

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexCh {
				if err := upsert(i); err != nil {
					failed.Add(1)
				}
			}
		}()
	}

Loop:
	for i := 0; i < n; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	return failed.Load()
}

func resolveDatasetPaths(baseDir, registrationsPath, paymentsPath string) (string, string, error) {
	resolve := func(explicitPath, fallbackFile string) (string, error) {
		if explicitPath != "" {
			if _, err := os.Stat(explicitPath); err != nil {
				return "", fmt.Errorf("stat %s: %w", explicitPath, err)
			}
			return explicitPath, nil
		}
		path := filepath.Join(baseDir, fallbackFile)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", errMissingDataset, path)
		}
		return path, nil
	}

	regFile, err := resolve(registrationsPath, "registrations.json")
	if err != nil {
		return "", "", err
	}
	payFile, err := resolve(paymentsPath, "payments.json")
	if err != nil {
		return "", "", err
	}
	return regFile, payFile, nil
}

func loadJSON(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
