package app

import (
	"context"
	"fmt"
	"time"

	"github.com/serapeum-ai/serapeum/internal/config"
	"github.com/serapeum-ai/serapeum/internal/graph"
	"github.com/serapeum-ai/serapeum/internal/knowledge"
	"github.com/serapeum-ai/serapeum/internal/ledger"
	"github.com/serapeum-ai/serapeum/internal/log"
	"github.com/serapeum-ai/serapeum/internal/model"
	"github.com/serapeum-ai/serapeum/internal/rag"
	"github.com/serapeum-ai/serapeum/internal/vector"
)

const probeTimeout = 5 * time.Second

// Setup creates and initializes the application. The vector store, the
// ledger and the model backends are mandatory and fail startup; the
// graph store and the knowledge processor degrade to unavailable.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(ctx); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := provideVectorStore(ctx, cfg, a); err != nil {
		return nil, err
	}

	led, err := ledger.Open(cfg.LedgerPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening dedup ledger: %w", err)
	}
	a.Ledger = led

	provideGraph(ctx, cfg, a)
	provideKnowledge(ctx, cfg, a)

	if err := provideModels(ctx, cfg, a); err != nil {
		return nil, err
	}

	if err := providePipelines(cfg, a); err != nil {
		return nil, err
	}

	logger.Info("application initialized",
		"graph_available", a.Availability.Graph,
		"knowledge_available", a.Availability.Knowledge,
		"embedding_backends", len(cfg.EmbeddingBackends))
	return a, nil
}

// provideVectorStore opens the pgx pool, ensures the collection exists
// and verifies the declared dimension. Any failure is fatal: the vector
// store is the system's source of truth.
func provideVectorStore(ctx context.Context, cfg *config.Config, a *App) error {
	pool, err := vector.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return err
	}
	a.Pool = pool

	store, err := vector.New(pool, cfg.EmbedDimension, a.Logger)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := store.Ping(probeCtx); err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	if err := store.EnsureCollection(probeCtx); err != nil {
		return fmt.Errorf("preparing vector collection: %w", err)
	}

	a.Vectors = store
	a.Availability.Vector = true
	return nil
}

func provideGraph(ctx context.Context, cfg *config.Config, a *App) {
	if cfg.Neo4jURI == "" {
		a.Logger.Info("graph store not configured")
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	store, err := graph.Connect(probeCtx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, a.Logger)
	if err != nil {
		a.Logger.Warn("graph store unavailable, continuing without it", "error", err)
		return
	}
	a.Graph = store
	a.Availability.Graph = true
}

func provideKnowledge(ctx context.Context, cfg *config.Config, a *App) {
	if cfg.KnowledgeCommand == "" {
		a.Logger.Info("knowledge processor not configured")
		return
	}

	proc, err := knowledge.NewSubprocess(cfg.KnowledgeCommand, cfg.KnowledgeArgs, a.Logger)
	if err != nil {
		a.Logger.Warn("knowledge processor unavailable, continuing without it", "error", err)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := proc.Ping(probeCtx); err != nil {
		a.Logger.Warn("knowledge processor probe failed, continuing without it", "error", err)
		return
	}
	a.Knowledge = proc
	a.Availability.Knowledge = true
}

func provideModels(ctx context.Context, cfg *config.Config, a *App) error {
	backends, err := embeddingBackends(cfg)
	if err != nil {
		return err
	}
	embedder, err := model.NewFallbackEmbedder(a.Logger, backends...)
	if err != nil {
		return err
	}
	a.Embedder = embedder

	genBackend, err := generationBackend(ctx, cfg)
	if err != nil {
		return err
	}
	generator, err := model.NewGenerator(genBackend)
	if err != nil {
		return err
	}
	a.Generator = generator
	return nil
}

// embeddingBackends builds the fallback chain in configuration order.
func embeddingBackends(cfg *config.Config) ([]model.Backend, error) {
	backends := make([]model.Backend, 0, len(cfg.EmbeddingBackends))
	for _, b := range cfg.EmbeddingBackends {
		backend, err := model.NewOpenAI(model.OpenAIConfig{
			APIKey:     orPlaceholder(cfg.OpenAIAPIKey),
			BaseURL:    b.BaseURL,
			EmbedModel: b.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding backend %q: %w", b.Name, err)
		}
		backends = append(backends, backend)
	}
	return backends, nil
}

func generationBackend(ctx context.Context, cfg *config.Config) (model.Backend, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return model.NewGemini(ctx, model.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			CompletionModel: cfg.CompletionModel,
		})
	default:
		return model.NewOpenAI(model.OpenAIConfig{
			APIKey:          orPlaceholder(cfg.OpenAIAPIKey),
			BaseURL:         cfg.GenerationURL,
			CompletionModel: cfg.CompletionModel,
			Temperature:     float64(cfg.Temperature),
			MaxTokens:       cfg.MaxTokens,
		})
	}
}

// orPlaceholder keeps local OpenAI-compatible servers happy: they
// require the Authorization header to be present but ignore its value.
func orPlaceholder(key string) string {
	if key == "" {
		return "not-needed"
	}
	return key
}

func providePipelines(cfg *config.Config, a *App) error {
	timeout := time.Duration(cfg.BackendTimeout) * time.Second

	var graphStore rag.GraphStore
	if a.Graph != nil {
		graphStore = a.Graph
	}
	var processor rag.KnowledgeProcessor
	if a.Knowledge != nil {
		processor = a.Knowledge
	}

	ingestor, err := rag.NewIngestor(rag.IngestorConfig{
		Embedder:  a.Embedder,
		Vectors:   a.Vectors,
		Ledger:    a.Ledger,
		Graph:     graphStore,
		Processor: processor,
		Window:    cfg.ChunkWindow,
		Overlap:   cfg.ChunkOverlap,
		Timeout:   timeout,
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}
	a.Ingestor = ingestor

	querier, err := rag.NewQuerier(rag.QuerierConfig{
		Embedder:  a.Embedder,
		Vectors:   a.Vectors,
		Generator: a.Generator,
		Timeout:   timeout,
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}
	a.Querier = querier
	return nil
}
