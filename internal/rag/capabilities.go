package rag

import (
	"context"
	"encoding/json"
)

// The pipelines depend on these capability interfaces rather than the
// concrete backend packages: the consumer declares what it needs,
// internal/app supplies implementations, tests supply doubles.

// Embedder converts text to a fixed-dimension vector. Implementations
// must treat a timeout like any other backend failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists content+vector+metadata by id and serves
// similarity search. Get returns (nil, nil) when the id is absent.
type VectorStore interface {
	Upsert(ctx context.Context, doc Document, vector []float32) error
	Get(ctx context.Context, id string) (*Document, error)
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)
}

// GraphStore creates typed nodes for stored documents. Best-effort: a
// failure here never aborts ingestion.
type GraphStore interface {
	CreateNode(ctx context.Context, label string, properties map[string]any) error
}

// Ledger is the append-only dedup ledger keyed by source filename.
type Ledger interface {
	IsProcessed(ctx context.Context, filename string) (bool, error)
	MarkProcessed(ctx context.Context, filename string) error
}

// Generator produces completions. CompleteWithContext applies the fixed
// RAG synthesis template over the retrieved context documents.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithContext(ctx context.Context, query string, contextDocs []string) (string, error)
}

// KnowledgeProcessor is the external knowledge-graph processor reached
// over a process boundary. Best-effort during ingestion; a direct
// capability for the knowledge_add / knowledge_search operations.
type KnowledgeProcessor interface {
	Add(ctx context.Context, text string) (json.RawMessage, error)
}
