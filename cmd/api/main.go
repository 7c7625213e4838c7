package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/api"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/queue"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to harvester configuration file")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	// Optional .env for DB_URL and friends; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := config.BuildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	tracker := storage.NewJobTracker(store, logger)
	reviews := storage.NewReviewStore(store)

	taskQueue, err := buildQueue(cfg.Queue)
	if err != nil {
		log.Fatalf("failed to initialise queue: %v", err)
	}
	defer taskQueue.Close()

	server := api.NewServer(tracker, reviews, taskQueue, logger)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("api server listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("api server stopped")
}

func buildQueue(cfg config.QueueConfig) (queue.Queue, error) {
	if cfg.Provider == "memory" {
		return queue.NewMemoryQueue(cfg.Buffer), nil
	}
	return queue.NewRedisQueue(cfg.Redis)
}
