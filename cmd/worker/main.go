package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/browser"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/extract"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/fetcher"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/pipeline"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/queue"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/robots"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/storage"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to harvester configuration file")
	flag.Parse()

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

	var probe *fetcher.Probe
	if cfg.Scrape.ProbeEnabled || cfg.Robots.Respect {
		probe = fetcher.NewProbe(fetcher.Options{
			UserAgent:    cfg.Scrape.UserAgent,
			Timeout:      cfg.Scrape.ProbeTimeout.Duration,
			MaxBodyBytes: cfg.Scrape.MaxBodyBytes,
		})
	}

	var robotsAgent *robots.Agent
	if cfg.Robots.Respect {
		robotsAgent = robots.NewAgent(cfg.Robots, probe.Client())
	}

	acquireProbe := probe
	if !cfg.Scrape.ProbeEnabled {
		acquireProbe = nil
	}
	acquirer := browser.NewAcquirer(cfg.Scrape, robotsAgent, acquireProbe, logger)
	extractor := extract.NewExtractor(cfg.Selectors)
	reviews := storage.NewReviewStore(store)
	tracker := storage.NewJobTracker(store, logger)

	pipe := pipeline.New(acquirer, extractor, reviews, tracker, cfg.Scrape.PersistTimeout.Duration, logger)

	taskQueue, err := buildQueue(cfg.Queue)
	if err != nil {
		log.Fatalf("failed to initialise queue: %v", err)
	}
	defer taskQueue.Close()

	pool, err := worker.NewPool(ctx, cfg.Worker.Concurrency, cfg.Worker.QueueSize)
	if err != nil {
		log.Fatalf("failed to start worker pool: %v", err)
	}
	defer pool.Close()

	logger.Info("worker started", "concurrency", cfg.Worker.Concurrency, "queue", cfg.Queue.Provider)

	for {
		task, err := taskQueue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				break
			}
			logger.Error("dequeue failed", "error", err)
			continue
		}
		submitErr := pool.Submit(ctx, func(jobCtx context.Context) {
			if err := pipe.Run(jobCtx, task.AppID, task.JobID); err != nil {
				logger.Error("job run failed", "job_id", task.JobID, "error", err)
			}
		})
		if submitErr != nil {
			logger.Error("submit failed", "job_id", task.JobID, "error", submitErr)
		}
	}

	logger.Info("worker shutting down")
}

func buildQueue(cfg config.QueueConfig) (queue.Queue, error) {
	if cfg.Provider == "memory" {
		return queue.NewMemoryQueue(cfg.Buffer), nil
	}
	return queue.NewRedisQueue(cfg.Redis)
}
