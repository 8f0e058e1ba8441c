package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/lodgetix/reconcile/internal/config"
	"github.com/lodgetix/reconcile/internal/logging"
	"github.com/lodgetix/reconcile/internal/server"
	"github.com/lodgetix/reconcile/internal/service"
	"github.com/lodgetix/reconcile/internal/store"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	storeClient, err := buildStoreClient(ctx, cfg)
	if err != nil {
		logger.Error("failed to create store client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storeClient.Close(context.Background()); err != nil {
			logger.Warn("closing store client failed", "error", err)
		}
	}()

	matchService := service.NewMatchService(storeClient, cfg.MatchConfig(), logger)
	reprocessor := service.NewReprocessor(matchService, storeClient, cfg.Reprocess.Workers, logger)
	apiHandlers := server.NewAPIHandlers(logger, matchService, reprocessor, storeClient)

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           server.StoreHealthService{Client: storeClient},
		API:              apiHandlers,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	var scheduler *cron.Cron
	if cfg.Reprocess.Cron != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Reprocess.Cron, func() {
			if _, err := reprocessor.Run(context.Background(), service.ReprocessOptions{}); err != nil {
				logger.Error("scheduled reprocess failed", "error", err)
			}
		})
		if err != nil {
			logger.Error("invalid REPROCESS_CRON expression", "error", err, "cron", cfg.Reprocess.Cron)
			os.Exit(1)
		}
		scheduler.Start()
		logger.Info("reprocess scheduler started", "cron", cfg.Reprocess.Cron)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildStoreClient(ctx context.Context, cfg config.Config) (store.Client, error) {
	if cfg.Store.URI == "" {
		return nil, store.ErrMissingURI
	}
	return store.NewMongoClient(ctx, cfg.StoreOptions())
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
