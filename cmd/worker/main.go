package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/sitewise-ai/sitewise/pkg/blob"
	"github.com/sitewise-ai/sitewise/pkg/config"
	"github.com/sitewise-ai/sitewise/pkg/crawler"
	"github.com/sitewise-ai/sitewise/pkg/fetch"
	"github.com/sitewise-ai/sitewise/pkg/logger"
	"github.com/sitewise-ai/sitewise/pkg/pagecache"
	"github.com/sitewise-ai/sitewise/pkg/queue"
	"github.com/sitewise-ai/sitewise/pkg/resource"
	"github.com/sitewise-ai/sitewise/pkg/storage"
	"github.com/sitewise-ai/sitewise/pkg/worker"
)

func main() {
	cfg, err := config.Load("config.toml")
	if err != nil {
		slog.Error("fatal: couldn't load config", slog.Any("err", err))
		os.Exit(1)
	}

	logger.InitLogger(cfg)

	pool, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("fatal: couldn't open database", slog.Any("err", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := storage.RunMigrations(pool); err != nil {
		slog.Error("fatal: failed to run migrations", "err", err)
		os.Exit(1)
	}

	store := storage.NewPostgres(pool)
	registry := resource.NewRegistry(store)
	gateway := queue.NewGateway(pool)

	listener := queue.NewListener(cfg.DSN, 15*time.Second)
	defer listener.Close()

	blobs, err := blob.New(cfg.Blob.Root)
	if err != nil {
		slog.Error("fatal: couldn't open blob store", slog.Any("err", err))
		os.Exit(1)
	}

	fetcher := fetch.New(
		fetch.WithTimeout(cfg.Fetch.GetTimeout()),
		fetch.WithRateLimit(cfg.Fetch.RequestsPerSec),
		fetch.WithDeniedCooldown(cfg.Fetch.GetDeniedCooldown()),
	)
	cache := pagecache.New(store, cfg.PageCache.GetTTL())

	builder := crawler.New(store, fetcher, cache,
		crawler.WithLimits(cfg.Crawler.MaxPages, cfg.Crawler.MaxDepth),
		crawler.WithWorkers(cfg.Crawler.Workers),
		crawler.WithUserAgent(cfg.Crawler.UserAgent),
		crawler.WithDeadline(cfg.Crawler.GetDeadline()),
	)

	w := worker.New(gateway, listener, registry, builder, blobs, store, worker.Config{
		Concurrency:  cfg.Worker.Concurrency,
		StuckHorizon: cfg.Worker.GetStuckHorizon(),
		MaxAttempts:  cfg.Worker.MaxAttempts,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.Run(ctx)
	slog.Info("shutdown complete")
}
