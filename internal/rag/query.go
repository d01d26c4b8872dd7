package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultTopK is the number of nearest neighbours retrieved when the
// caller does not ask for a specific count.
const DefaultTopK = 5

// QuerierConfig wires the query pipeline. All three capabilities are
// required: a query cannot be answered without embedding, retrieval and
// generation.
type QuerierConfig struct {
	Embedder  Embedder
	Vectors   VectorStore
	Generator Generator

	// Timeout bounds each backend call. Zero takes DefaultBackendTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Querier answers natural-language queries against the vector store.
type Querier struct {
	embedder  Embedder
	vectors   VectorStore
	generator Generator
	timeout   time.Duration
	logger    *slog.Logger
}

func NewQuerier(cfg QuerierConfig) (*Querier, error) {
	if cfg.Embedder == nil {
		return nil, Configurationf("querier: embedder is required")
	}
	if cfg.Vectors == nil {
		return nil, Configurationf("querier: vector store is required")
	}
	if cfg.Generator == nil {
		return nil, Configurationf("querier: generator is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultBackendTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Querier{
		embedder:  cfg.Embedder,
		vectors:   cfg.Vectors,
		generator: cfg.Generator,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Answer embeds the query, retrieves the topK nearest documents and
// generates a grounded response. Validation happens before any backend
// is touched; there is no fallback on the generation side.
func (q *Querier) Answer(ctx context.Context, query string, topK int) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, Validationf("query is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := q.embed(ctx, query)
	if err != nil {
		return Answer{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, q.timeout)
	results, err := q.vectors.Search(sctx, vec, topK)
	cancel()
	if err != nil {
		return Answer{}, asBackendError("vector", err)
	}

	// Search returns results in descending similarity order; the
	// context block preserves that order so the most relevant document
	// leads the prompt.
	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Content
	}

	gctx, cancel := context.WithTimeout(ctx, q.timeout)
	response, err := q.generator.CompleteWithContext(gctx, query, contexts)
	cancel()
	if err != nil {
		return Answer{}, asBackendError("generation", err)
	}

	q.logger.Info("query answered", "results", len(results), "top_k", topK)
	return Answer{
		Query:         query,
		Response:      response,
		ContextUsed:   contexts,
		SearchResults: results,
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (q *Querier) embed(ctx context.Context, text string) ([]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	vec, err := q.embedder.Embed(cctx, text)
	if err != nil {
		return nil, asBackendError("embedding", err)
	}
	return vec, nil
}
