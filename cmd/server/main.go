package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/sitewise-ai/sitewise/pkg/api"
	"github.com/sitewise-ai/sitewise/pkg/blob"
	"github.com/sitewise-ai/sitewise/pkg/chat"
	"github.com/sitewise-ai/sitewise/pkg/config"
	"github.com/sitewise-ai/sitewise/pkg/fetch"
	"github.com/sitewise-ai/sitewise/pkg/ingest"
	"github.com/sitewise-ai/sitewise/pkg/logger"
	"github.com/sitewise-ai/sitewise/pkg/pagecache"
	"github.com/sitewise-ai/sitewise/pkg/queue"
	"github.com/sitewise-ai/sitewise/pkg/resource"
	"github.com/sitewise-ai/sitewise/pkg/retrieval"
	"github.com/sitewise-ai/sitewise/pkg/storage"
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
	engine := retrieval.New(store, cache, fetcher, cfg.Retrieval.TopN)

	generator := chat.NewOpenAI(
		chat.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		chat.WithModel(cfg.Chat.Model),
		chat.WithMaxTokens(cfg.Chat.MaxTokens),
	)
	chatSvc := chat.NewService(store, engine, chat.NewAssembler(generator), cfg.Retrieval.ContextSize)

	ingestSvc := ingest.NewService(registry, gateway, blobs)
	server := api.NewServer(ingestSvc, registry, chatSvc, cfg.Server.SigningKey)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		slog.Error("fatal: server failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
