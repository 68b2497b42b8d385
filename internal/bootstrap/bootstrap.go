package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maximebr/fraud-assistant/internal/config"
	"github.com/maximebr/fraud-assistant/internal/core/domain"
	"github.com/maximebr/fraud-assistant/internal/core/ports"
	"github.com/maximebr/fraud-assistant/internal/core/sanitize"
	"github.com/maximebr/fraud-assistant/internal/core/usecase"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/chunking"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/extractor/markdownsrc"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/extractor/pdfsrc"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/lexical"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/llm/ollama"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/queue/nats"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/repository/postgres"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/resilience"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/vector/qdrant"
	"github.com/maximebr/fraud-assistant/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue      ports.MessageQueue
	Repo       ports.ChunkRepository
	Generator  ports.Generator
	ChatUC     ports.ChatService
	RetrieveUC *usecase.RetrieveUseCase
	ReindexUC  *usecase.ReindexUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewChunkRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaTimeout := time.Duration(cfg.OllamaTimeoutSeconds) * time.Second
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollamaTimeout)
	embedder := ollama.NewResilientEmbedder(ollama.NewEmbedder(ollamaClient), executor)
	generator := ollama.NewResilientGenerator(ollama.NewGenerator(ollamaClient), executor)

	vectorDB := qdrant.New(cfg.QdrantURL, 30*time.Second)

	checker := sanitize.New()
	if err := checker.LoadExtraRules(cfg.SanitizerRules); err != nil {
		return nil, fmt.Errorf("load sanitizer rules: %w", err)
	}

	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkLen)
	extractors := []ports.SectionExtractor{
		plaintext.New(),
		markdownsrc.New(),
		pdfsrc.New(),
	}

	retrieveUC := usecase.NewRetrieveUseCase(embedder, vectorDB, checker, usecase.RetrieveConfig{
		TopKSemantic:   cfg.TopKSemantic,
		TopKLexical:    cfg.TopKLexical,
		SemanticWeight: cfg.SemanticWeight,
	})

	chatUC := usecase.NewChatUseCase(retrieveUC, generator, checker, usecase.ChatConfig{
		MinRelevance: cfg.MinRelevance,
	}, logger)

	buildLexical := func(chunks []domain.Chunk) ports.LexicalSearcher {
		return lexical.Build(chunks)
	}

	reindexUC := usecase.NewReindexUseCase(
		extractors,
		splitter,
		embedder,
		vectorDB,
		repo,
		retrieveUC,
		buildLexical,
		usecase.ReindexConfig{
			DocsDir:        cfg.DocsDir,
			CollectionBase: cfg.QdrantCollectionBase,
		},
		logger,
	)

	if err := reindexUC.Restore(ctx); err != nil {
		logger.Warn("could not restore previous index generation", "error", err)
	}

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:      queue,
		Repo:       repo,
		Generator:  generator,
		ChatUC:     chatUC,
		RetrieveUC: retrieveUC,
		ReindexUC:  reindexUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
