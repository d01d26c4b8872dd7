// Package rag implements the two orchestration pipelines of the server:
// document ingestion (dedup, chunking, embedding, multi-store write) and
// query answering (embedding, similarity search, context assembly,
// generation).
//
// The package defines the capability interfaces it consumes; concrete
// backends live in internal/vector, internal/graph, internal/ledger,
// internal/model and internal/knowledge and are wired in by internal/app.
package rag

import "time"

// Document is the unit of stored content. The ID is assigned at ingestion
// time, never supplied by callers. The vector store is authoritative for a
// document's existence; graph and knowledge-processor writes are
// best-effort enrichments.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// SearchResult is one ranked hit from a similarity search. Score is cosine
// similarity; results are ordered by descending score, ties broken by
// ascending id so repeated queries over the same data are deterministic.
type SearchResult struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Answer is the result of a query-pipeline run. SearchResults carries the
// raw evidence so callers can audit what backed the response.
type Answer struct {
	Query         string         `json:"query"`
	Response      string         `json:"response"`
	ContextUsed   []string       `json:"context_used"`
	SearchResults []SearchResult `json:"search_results"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Outcome classifies how an ingestion call ended. A degraded outcome means
// the vector-store write succeeded but at least one enrichment backend
// failed; the document is fully queryable either way.
type Outcome int

const (
	// OutcomeStored: vector write and all enrichments succeeded.
	OutcomeStored Outcome = iota

	// OutcomeDegraded: vector write succeeded, enrichment was lost.
	OutcomeDegraded

	// OutcomeSkipped: the source file was already in the dedup ledger;
	// nothing was embedded or written.
	OutcomeSkipped
)

// String returns the wire name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText lets Outcome render as its string form in JSON responses.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// IngestResult reports an ingestion call. FailedEnrichments names the
// best-effort backends that failed ("graph", "knowledge") when Outcome is
// OutcomeDegraded, so monitoring can detect silent enrichment gaps.
type IngestResult struct {
	Document          Document `json:"document"`
	Outcome           Outcome  `json:"outcome"`
	FailedEnrichments []string `json:"failed_enrichments,omitempty"`
}

// Availability records which backends answered their startup probe. It is
// written once during setup and only read afterwards, so no locking is
// needed. The vector backend is mandatory; setup fails outright when its
// probe fails, which is why there is no Vector=false state at runtime.
type Availability struct {
	Vector    bool
	Graph     bool
	Knowledge bool
}
