package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/katakuxiko/docchat/internal/api"
	"github.com/katakuxiko/docchat/internal/chunker"
	"github.com/katakuxiko/docchat/internal/config"
	"github.com/katakuxiko/docchat/internal/model"
	"github.com/katakuxiko/docchat/internal/pdf"
	"github.com/katakuxiko/docchat/internal/provider"
	"github.com/katakuxiko/docchat/internal/service"
	"github.com/katakuxiko/docchat/internal/store"
	"github.com/katakuxiko/docchat/internal/util"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := util.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// store
	backend, closeBackend, err := openBackend(ctx, cfg.Index)
	if err != nil {
		return err
	}
	defer closeBackend()

	// providers
	llm, err := provider.NewLanguageModel(cfg.LLM)
	if err != nil {
		return err
	}
	if _, err := provider.NewEmbedder(cfg.Embedding); err != nil {
		return err
	}
	newEmbedder := func() (model.Embedder, error) { return provider.NewEmbedder(cfg.Embedding) }

	splitter, err := chunker.New(cfg.Chunk.Size, cfg.Chunk.Overlap, cfg.Chunk.Separator)
	if err != nil {
		return err
	}

	// services
	metrics := service.NewMetrics()
	sessions := service.NewSessionStore(log)
	rag := service.NewRAGService(service.RAGDeps{
		Extractor: pdf.NewExtractor(cfg.PDF.PageSeparator),
		Splitter:  splitter,
		Indexer: service.NewIndexer(backend, service.IndexerOptions{
			BatchSize:   cfg.Embedding.BatchSize,
			Concurrency: cfg.Embedding.Concurrency,
			RateLimit:   cfg.Embedding.RateLimit,
			Timeout:     cfg.Embedding.Timeout,
		}, metrics, log),
		Retriever: service.NewRetriever(service.RetrieverOptions{
			TopK:         cfg.Retrieval.TopK,
			SystemPrompt: cfg.Retrieval.SystemPrompt,
			EmbedTimeout: cfg.Embedding.Timeout,
			LLMTimeout:   cfg.LLM.Timeout,
		}, metrics, log),
		NewEmbedder: newEmbedder,
		LLM:         llm,
		Sessions:    sessions,
		Metrics:     metrics,
		Log:         log,
	})

	// idle session eviction
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.SweepSchedule, func() {
		sessions.Sweep(context.Background(), cfg.SessionTTL)
	}); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	sched.Start()
	defer sched.Stop()

	// api
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.BodyLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	api.RegisterRoutes(app, rag, log)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn("shutdown", "error", err)
		}
	}()

	log.Info("server started",
		"addr", cfg.ServerAddr,
		"backend", backend.Name(),
		"embedder", cfg.Embedding.Provider,
		"embed_model", cfg.Embedding.Model,
		"llm", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)
	if err := app.Listen(cfg.ServerAddr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	sessions.CloseAll(context.Background())
	return nil
}

func openBackend(ctx context.Context, cfg config.IndexConfig) (store.Backend, func(), error) {
	switch cfg.Backend {
	case "pgvector":
		pg, err := store.NewPgStore(ctx, cfg.PgConn)
		if err != nil {
			return nil, nil, fmt.Errorf("pgvector: %w", err)
		}
		return pg, func() { pg.Close() }, nil
	default:
		return store.NewMemoryBackend(), func() {}, nil
	}
}
