package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serapeum-ai/serapeum/internal/chunk"
	"github.com/serapeum-ai/serapeum/internal/extract"
)

// DefaultBackendTimeout bounds a single backend call when the
// configuration does not say otherwise. A timeout is treated exactly
// like a backend-reported failure.
const DefaultBackendTimeout = 30 * time.Second

// IngestorConfig wires the ingestion pipeline. Embedder, Vectors and
// Ledger are required; Graph and Processor are optional best-effort
// enrichment backends — leaving one nil means its capability failed the
// startup probe and every ingestion will be marked degraded for it.
type IngestorConfig struct {
	Embedder  Embedder
	Vectors   VectorStore
	Ledger    Ledger
	Graph     GraphStore
	Processor KnowledgeProcessor

	// Window and Overlap control chunking, in runes. Zero values take
	// the chunk package defaults.
	Window  int
	Overlap int

	// Timeout bounds each backend call. Zero takes DefaultBackendTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Ingestor orchestrates document intake: dedup check, chunking,
// embedding with fallback, vector write, best-effort enrichment, ledger
// record.
type Ingestor struct {
	embedder  Embedder
	vectors   VectorStore
	ledger    Ledger
	graph     GraphStore
	processor KnowledgeProcessor
	splitter  *chunk.Splitter
	timeout   time.Duration
	logger    *slog.Logger
}

// NewIngestor validates required capabilities and the chunk geometry.
func NewIngestor(cfg IngestorConfig) (*Ingestor, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder is required")
	}
	if cfg.Vectors == nil {
		return nil, fmt.Errorf("rag: vector store is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("rag: dedup ledger is required")
	}

	window := cfg.Window
	if window == 0 {
		window = chunk.DefaultWindow
	}
	overlap := cfg.Overlap
	if overlap == 0 {
		overlap = chunk.DefaultOverlap
	}
	splitter, err := chunk.NewSplitter(window, overlap)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultBackendTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{
		embedder:  cfg.Embedder,
		vectors:   cfg.Vectors,
		ledger:    cfg.Ledger,
		graph:     cfg.Graph,
		processor: cfg.Processor,
		splitter:  splitter,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Ingest stores a document from programmatic input. The vector-store
// write is the durability point; graph and knowledge-processor writes
// run afterwards, concurrently, and their failures only mark the result
// degraded.
func (in *Ingestor) Ingest(ctx context.Context, content string, metadata map[string]string) (IngestResult, error) {
	if strings.TrimSpace(content) == "" {
		return IngestResult{}, Validationf("content is required")
	}

	// Chunking bounds the embedding input, not the storage layout: the
	// windows are recombined into a single payload and the document
	// stays one vector-store record.
	payload := content
	if len([]rune(content)) > in.splitter.Window() {
		chunks := in.splitter.Split(content)
		payload = chunk.Recombine(chunks)
		in.logger.Debug("content chunked for embedding",
			"chunks", len(chunks), "window", in.splitter.Window())
	}

	vec, err := in.callEmbed(ctx, payload)
	if err != nil {
		// Nothing has been written anywhere at this point.
		return IngestResult{}, err
	}

	doc := Document{
		ID:        uuid.NewString(),
		Content:   payload,
		Metadata:  cloneMetadata(metadata),
		CreatedAt: time.Now().UTC(),
	}

	if err := in.callUpsert(ctx, doc, vec); err != nil {
		return IngestResult{}, err
	}

	failed := in.enrich(ctx, doc)

	result := IngestResult{Document: doc, Outcome: OutcomeStored, FailedEnrichments: failed}
	if len(failed) > 0 {
		result.Outcome = OutcomeDegraded
	}

	in.logger.Info("document ingested",
		"id", doc.ID, "outcome", result.Outcome.String(), "content_length", len(doc.Content))
	return result, nil
}

// IngestFile ingests a file's content, idempotently per base filename.
// PDF files are run through text extraction first; anything else is
// taken as plain text.
// The ledger is consulted before any model call and written after
// everything else, so a crash mid-pipeline re-runs the file on restart
// (at-least-once, never zero-time).
func (in *Ingestor) IngestFile(ctx context.Context, path string) (IngestResult, error) {
	filename := filepath.Base(path)

	processed, err := in.ledger.IsProcessed(ctx, filename)
	if err != nil {
		return IngestResult{}, BackendError("ledger", err)
	}
	if processed {
		in.logger.Info("file already processed, skipping", "filename", filename)
		return IngestResult{Outcome: OutcomeSkipped}, nil
	}

	content, err := extract.Text(path)
	if err != nil {
		return IngestResult{}, Validationf("cannot read file %q: %v", path, err)
	}

	metadata := map[string]string{
		"title":    strings.TrimSuffix(filename, filepath.Ext(filename)),
		"filename": filename,
	}
	result, err := in.Ingest(ctx, content, metadata)
	if err != nil {
		return IngestResult{}, err
	}

	// Last write. Failing here leaves the file re-ingestable, which
	// duplicates a vector record at worst; it never loses one.
	if err := in.ledger.MarkProcessed(ctx, filename); err != nil {
		in.logger.Warn("ledger write failed after successful ingestion",
			"filename", filename, "error", err)
		result.FailedEnrichments = append(result.FailedEnrichments, "ledger")
		result.Outcome = OutcomeDegraded
	}
	return result, nil
}

// enrich runs the graph write and the knowledge-processor submission
// concurrently: they have no data dependency on each other, and both
// complete (or fail individually) before the ingestion call returns.
// Returns the names of the backends that failed.
func (in *Ingestor) enrich(ctx context.Context, doc Document) []string {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []string
	)
	record := func(backend string, err error) {
		in.logger.Warn("best-effort enrichment failed", "backend", backend, "error", err)
		mu.Lock()
		failures = append(failures, backend)
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if in.graph == nil {
			record("graph", errors.New("capability unavailable"))
			return
		}
		cctx, cancel := context.WithTimeout(ctx, in.timeout)
		defer cancel()
		if err := in.graph.CreateNode(cctx, "Document", graphProperties(doc)); err != nil {
			record("graph", err)
		}
	}()
	go func() {
		defer wg.Done()
		if in.processor == nil {
			record("knowledge", errors.New("capability unavailable"))
			return
		}
		cctx, cancel := context.WithTimeout(ctx, in.timeout)
		defer cancel()
		if _, err := in.processor.Add(cctx, doc.Content); err != nil {
			record("knowledge", err)
		}
	}()
	wg.Wait()

	return failures
}

func (in *Ingestor) callEmbed(ctx context.Context, text string) ([]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	vec, err := in.embedder.Embed(cctx, text)
	if err != nil {
		return nil, asBackendError("embedding", err)
	}
	return vec, nil
}

func (in *Ingestor) callUpsert(ctx context.Context, doc Document, vec []float32) error {
	cctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	if err := in.vectors.Upsert(cctx, doc, vec); err != nil {
		return asBackendError("vector", err)
	}
	return nil
}

// asBackendError keeps already-classified errors (configuration,
// validation) intact and wraps everything else as a failure of the named
// backend.
func asBackendError(backend string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return BackendError(backend, err)
}

func cloneMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// graphProperties flattens a document into node properties the way the
// graph store expects them: metadata keys first, identity fields last so
// they cannot be shadowed.
func graphProperties(doc Document) map[string]any {
	props := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		props[k] = v
	}
	props["id"] = doc.ID
	props["content"] = doc.Content
	props["createdAt"] = doc.CreatedAt.Format(time.RFC3339)
	return props
}
