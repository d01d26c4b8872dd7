package rag

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/serapeum-ai/serapeum/internal/chunk"
	"github.com/serapeum-ai/serapeum/internal/log"
)

// Every ingestion spawns enrichment goroutines; none may outlive its
// call.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEmbedder struct {
	mu     sync.Mutex
	inputs []string
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeVectors struct {
	mu        sync.Mutex
	upserts   []Document
	vectors   [][]float32
	upsertErr error

	searchK   int
	searchVec []float32
	results   []SearchResult
	searchErr error

	ops *opLog
}

func (f *fakeVectors) Upsert(_ context.Context, doc Document, vec []float32) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, doc)
	f.vectors = append(f.vectors, vec)
	f.mu.Unlock()
	f.ops.record("upsert")
	return f.upsertErr
}

func (f *fakeVectors) Get(context.Context, string) (*Document, error) { return nil, nil }

func (f *fakeVectors) Search(_ context.Context, vec []float32, k int) ([]SearchResult, error) {
	f.searchVec = vec
	f.searchK = k
	return f.results, f.searchErr
}

type fakeLedger struct {
	mu        sync.Mutex
	processed map[string]bool
	checkErr  error
	markErr   error
	ops       *opLog
}

func (f *fakeLedger) IsProcessed(_ context.Context, filename string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[filename], nil
}

func (f *fakeLedger) MarkProcessed(_ context.Context, filename string) error {
	f.ops.record("mark")
	if f.markErr != nil {
		return f.markErr
	}
	f.mu.Lock()
	if f.processed == nil {
		f.processed = make(map[string]bool)
	}
	f.processed[filename] = true
	f.mu.Unlock()
	return nil
}

type fakeGraph struct {
	mu     sync.Mutex
	labels []string
	props  []map[string]any
	err    error
}

func (f *fakeGraph) CreateNode(_ context.Context, label string, properties map[string]any) error {
	f.mu.Lock()
	f.labels = append(f.labels, label)
	f.props = append(f.props, properties)
	f.mu.Unlock()
	return f.err
}

type fakeProcessor struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeProcessor) Add(_ context.Context, text string) (json.RawMessage, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{}`), nil
}

type fakeGenerator struct {
	query    string
	contexts []string
	response string
	err      error
}

func (f *fakeGenerator) Complete(context.Context, string) (string, error) {
	return f.response, f.err
}

func (f *fakeGenerator) CompleteWithContext(_ context.Context, query string, contextDocs []string) (string, error) {
	f.query = query
	f.contexts = contextDocs
	return f.response, f.err
}

// opLog records the order of side-effecting calls across goroutines.
type opLog struct {
	mu  sync.Mutex
	seq []string
}

func (l *opLog) record(op string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.seq = append(l.seq, op)
	l.mu.Unlock()
}

type ingestFixture struct {
	embedder  *fakeEmbedder
	vectors   *fakeVectors
	ledger    *fakeLedger
	graph     *fakeGraph
	processor *fakeProcessor
	ops       *opLog
}

func newIngestFixture() *ingestFixture {
	ops := &opLog{}
	return &ingestFixture{
		embedder:  &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}},
		vectors:   &fakeVectors{ops: ops},
		ledger:    &fakeLedger{ops: ops},
		graph:     &fakeGraph{},
		processor: &fakeProcessor{},
		ops:       ops,
	}
}

func (fx *ingestFixture) ingestor(t *testing.T, mutate func(cfg *IngestorConfig)) *Ingestor {
	t.Helper()
	cfg := IngestorConfig{
		Embedder:  fx.embedder,
		Vectors:   fx.vectors,
		Ledger:    fx.ledger,
		Graph:     fx.graph,
		Processor: fx.processor,
		Logger:    log.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	in, err := NewIngestor(cfg)
	if err != nil {
		t.Fatalf("NewIngestor() error = %v", err)
	}
	return in
}

func TestIngestEmptyContent(t *testing.T) {
	fx := newIngestFixture()
	in := fx.ingestor(t, nil)

	_, err := in.Ingest(context.Background(), "   ", nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("Ingest() error kind = %v, want validation", KindOf(err))
	}
	if len(fx.embedder.inputs) != 0 {
		t.Errorf("embedder called %d times for invalid input", len(fx.embedder.inputs))
	}
}

func TestIngestStoresDocument(t *testing.T) {
	fx := newIngestFixture()
	in := fx.ingestor(t, nil)

	result, err := in.Ingest(context.Background(), "hello world", map[string]string{"title": "greeting"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Outcome != OutcomeStored {
		t.Errorf("Outcome = %v, want %v (failed: %v)", result.Outcome, OutcomeStored, result.FailedEnrichments)
	}
	if result.Document.ID == "" {
		t.Error("document ID not assigned")
	}
	if len(fx.vectors.upserts) != 1 {
		t.Fatalf("Upsert called %d times, want 1", len(fx.vectors.upserts))
	}
	stored := fx.vectors.upserts[0]
	if stored.Content != "hello world" {
		t.Errorf("stored content = %q", stored.Content)
	}
	if stored.Metadata["title"] != "greeting" {
		t.Errorf("stored metadata = %v", stored.Metadata)
	}
	if !slices.Equal(fx.vectors.vectors[0], fx.embedder.vector) {
		t.Error("stored vector does not match embedder output")
	}
	if len(fx.graph.labels) != 1 || fx.graph.labels[0] != "Document" {
		t.Errorf("graph labels = %v, want [Document]", fx.graph.labels)
	}
	if got := fx.graph.props[0]["id"]; got != stored.ID {
		t.Errorf("graph node id = %v, want %v", got, stored.ID)
	}
	if len(fx.processor.texts) != 1 || fx.processor.texts[0] != "hello world" {
		t.Errorf("processor texts = %v", fx.processor.texts)
	}
}

func TestIngestEmbedFailureWritesNothing(t *testing.T) {
	fx := newIngestFixture()
	fx.embedder.err = errors.New("all backends down")
	in := fx.ingestor(t, nil)

	_, err := in.Ingest(context.Background(), "hello", nil)
	if KindOf(err) != KindBackend {
		t.Fatalf("Ingest() error kind = %v, want backend", KindOf(err))
	}
	if len(fx.vectors.upserts) != 0 {
		t.Error("vector store written after embedding failure")
	}
	if len(fx.graph.labels) != 0 || len(fx.processor.texts) != 0 {
		t.Error("enrichment ran after embedding failure")
	}
}

func TestIngestUpsertFailure(t *testing.T) {
	fx := newIngestFixture()
	fx.vectors.upsertErr = errors.New("connection refused")
	in := fx.ingestor(t, nil)

	_, err := in.Ingest(context.Background(), "hello", nil)
	var ragErr *Error
	if !errors.As(err, &ragErr) || ragErr.Backend != "vector" {
		t.Fatalf("Ingest() error = %v, want vector backend error", err)
	}
	if len(fx.graph.labels) != 0 {
		t.Error("enrichment ran after vector write failure")
	}
}

func TestIngestDegradedOnEnrichmentFailure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(fx *ingestFixture)
		failed []string
	}{
		{
			name:   "graph write fails",
			mutate: func(fx *ingestFixture) { fx.graph.err = errors.New("neo4j down") },
			failed: []string{"graph"},
		},
		{
			name:   "processor fails",
			mutate: func(fx *ingestFixture) { fx.processor.err = errors.New("exit status 1") },
			failed: []string{"knowledge"},
		},
		{
			name: "both fail",
			mutate: func(fx *ingestFixture) {
				fx.graph.err = errors.New("neo4j down")
				fx.processor.err = errors.New("exit status 1")
			},
			failed: []string{"graph", "knowledge"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newIngestFixture()
			tt.mutate(fx)
			in := fx.ingestor(t, nil)

			result, err := in.Ingest(context.Background(), "hello", nil)
			if err != nil {
				t.Fatalf("Ingest() error = %v", err)
			}
			if result.Outcome != OutcomeDegraded {
				t.Errorf("Outcome = %v, want %v", result.Outcome, OutcomeDegraded)
			}
			got := slices.Clone(result.FailedEnrichments)
			slices.Sort(got)
			if !slices.Equal(got, tt.failed) {
				t.Errorf("FailedEnrichments = %v, want %v", got, tt.failed)
			}
			if len(fx.vectors.upserts) != 1 {
				t.Error("vector write skipped despite enrichment-only failure")
			}
		})
	}
}

func TestIngestNilEnrichmentBackends(t *testing.T) {
	fx := newIngestFixture()
	in := fx.ingestor(t, func(cfg *IngestorConfig) {
		cfg.Graph = nil
		cfg.Processor = nil
	})

	result, err := in.Ingest(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Outcome != OutcomeDegraded {
		t.Errorf("Outcome = %v, want %v", result.Outcome, OutcomeDegraded)
	}
	got := slices.Clone(result.FailedEnrichments)
	slices.Sort(got)
	if !slices.Equal(got, []string{"graph", "knowledge"}) {
		t.Errorf("FailedEnrichments = %v", got)
	}
}

func TestIngestChunksOversizedContent(t *testing.T) {
	fx := newIngestFixture()
	in := fx.ingestor(t, func(cfg *IngestorConfig) {
		cfg.Window = 10
		cfg.Overlap = 3
	})

	content := "abcdefghijklmnopqrstuvwxy" // 25 runes, over the 10-rune window
	if _, err := in.Ingest(context.Background(), content, nil); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	splitter, err := chunk.NewSplitter(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := chunk.Recombine(splitter.Split(content))
	if len(fx.embedder.inputs) != 1 || fx.embedder.inputs[0] != want {
		t.Errorf("embedder input = %q, want recombined %q", fx.embedder.inputs, want)
	}
	if fx.vectors.upserts[0].Content != want {
		t.Errorf("stored content = %q, want recombined payload", fx.vectors.upserts[0].Content)
	}
}

func TestIngestFileIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("file body"), 0o600); err != nil {
		t.Fatal(err)
	}

	fx := newIngestFixture()
	in := fx.ingestor(t, nil)

	first, err := in.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if first.Outcome != OutcomeStored {
		t.Errorf("first Outcome = %v, want %v", first.Outcome, OutcomeStored)
	}
	if got := first.Document.Metadata["filename"]; got != "notes.txt" {
		t.Errorf(`metadata["filename"] = %q`, got)
	}
	if got := first.Document.Metadata["title"]; got != "notes" {
		t.Errorf(`metadata["title"] = %q`, got)
	}

	second, err := in.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second IngestFile() error = %v", err)
	}
	if second.Outcome != OutcomeSkipped {
		t.Errorf("second Outcome = %v, want %v", second.Outcome, OutcomeSkipped)
	}
	if len(fx.embedder.inputs) != 1 {
		t.Errorf("embedder called %d times across two ingestions, want 1", len(fx.embedder.inputs))
	}
	if len(fx.vectors.upserts) != 1 {
		t.Errorf("Upsert called %d times, want 1", len(fx.vectors.upserts))
	}
}

func TestIngestFileLedgerWrittenLast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("body"), 0o600); err != nil {
		t.Fatal(err)
	}

	fx := newIngestFixture()
	in := fx.ingestor(t, nil)

	if _, err := in.IngestFile(context.Background(), path); err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	seq := fx.ops.seq
	if len(seq) != 2 || seq[0] != "upsert" || seq[1] != "mark" {
		t.Errorf("operation order = %v, want [upsert mark]", seq)
	}
}

func TestIngestFileLedgerWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("body"), 0o600); err != nil {
		t.Fatal(err)
	}

	fx := newIngestFixture()
	fx.ledger.markErr = errors.New("disk full")
	in := fx.ingestor(t, nil)

	result, err := in.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if result.Outcome != OutcomeDegraded {
		t.Errorf("Outcome = %v, want %v", result.Outcome, OutcomeDegraded)
	}
	if !slices.Contains(result.FailedEnrichments, "ledger") {
		t.Errorf("FailedEnrichments = %v, want ledger listed", result.FailedEnrichments)
	}
}

func TestIngestFileMissing(t *testing.T) {
	fx := newIngestFixture()
	in := fx.ingestor(t, nil)

	_, err := in.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	if KindOf(err) != KindValidation {
		t.Errorf("IngestFile() error kind = %v, want validation", KindOf(err))
	}
}

func TestIngestFileCorruptPDF(t *testing.T) {
	fx := newIngestFixture()
	in := fx.ingestor(t, nil)

	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := in.IngestFile(context.Background(), path)
	if KindOf(err) != KindValidation {
		t.Errorf("IngestFile() error kind = %v, want validation", KindOf(err))
	}
	if len(fx.embedder.inputs) != 0 {
		t.Errorf("embedder called %d time(s) for unextractable pdf", len(fx.embedder.inputs))
	}
}

func newQuerier(t *testing.T, e *fakeEmbedder, v *fakeVectors, g *fakeGenerator) *Querier {
	t.Helper()
	q, err := NewQuerier(QuerierConfig{
		Embedder:  e,
		Vectors:   v,
		Generator: g,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewQuerier() error = %v", err)
	}
	return q
}

func TestAnswerEmptyQuery(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	q := newQuerier(t, embedder, &fakeVectors{}, &fakeGenerator{})

	for _, query := range []string{"", "   ", "\n\t"} {
		if _, err := q.Answer(context.Background(), query, 5); KindOf(err) != KindValidation {
			t.Errorf("Answer(%q) error kind = %v, want validation", query, KindOf(err))
		}
	}
	if len(embedder.inputs) != 0 {
		t.Errorf("embedder called %d times for invalid queries", len(embedder.inputs))
	}
}

func TestAnswerDefaultsTopK(t *testing.T) {
	vectors := &fakeVectors{}
	q := newQuerier(t, &fakeEmbedder{vector: []float32{1}}, vectors, &fakeGenerator{response: "ok"})

	if _, err := q.Answer(context.Background(), "what is serapeum?", 0); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if vectors.searchK != DefaultTopK {
		t.Errorf("search k = %d, want %d", vectors.searchK, DefaultTopK)
	}
}

func TestAnswerAssemblesContextInOrder(t *testing.T) {
	vectors := &fakeVectors{results: []SearchResult{
		{ID: "a", Score: 0.92, Content: "first"},
		{ID: "b", Score: 0.85, Content: "second"},
		{ID: "c", Score: 0.41, Content: "third"},
	}}
	gen := &fakeGenerator{response: "grounded answer"}
	q := newQuerier(t, &fakeEmbedder{vector: []float32{1}}, vectors, gen)

	answer, err := q.Answer(context.Background(), "ordering?", 3)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	want := []string{"first", "second", "third"}
	if !slices.Equal(gen.contexts, want) {
		t.Errorf("generator contexts = %v, want %v", gen.contexts, want)
	}
	if gen.query != "ordering?" {
		t.Errorf("generator query = %q", gen.query)
	}
	if answer.Response != "grounded answer" {
		t.Errorf("Response = %q", answer.Response)
	}
	if !slices.Equal(answer.ContextUsed, want) {
		t.Errorf("ContextUsed = %v, want %v", answer.ContextUsed, want)
	}
	if len(answer.SearchResults) != 3 {
		t.Errorf("SearchResults len = %d, want 3", len(answer.SearchResults))
	}
	if answer.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestAnswerNoResultsStillGenerates(t *testing.T) {
	gen := &fakeGenerator{response: "no idea"}
	q := newQuerier(t, &fakeEmbedder{vector: []float32{1}}, &fakeVectors{}, gen)

	answer, err := q.Answer(context.Background(), "anything stored?", 5)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(gen.contexts) != 0 {
		t.Errorf("generator contexts = %v, want empty", gen.contexts)
	}
	if answer.Response != "no idea" {
		t.Errorf("Response = %q", answer.Response)
	}
}

func TestAnswerGenerationFailureSurfaces(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	q := newQuerier(t, &fakeEmbedder{vector: []float32{1}}, &fakeVectors{}, gen)

	_, err := q.Answer(context.Background(), "query", 5)
	var ragErr *Error
	if !errors.As(err, &ragErr) || ragErr.Backend != "generation" {
		t.Fatalf("Answer() error = %v, want generation backend error", err)
	}
}

func TestAnswerSearchFailureSurfaces(t *testing.T) {
	vectors := &fakeVectors{searchErr: errors.New("pool closed")}
	q := newQuerier(t, &fakeEmbedder{vector: []float32{1}}, vectors, &fakeGenerator{})

	_, err := q.Answer(context.Background(), "query", 5)
	var ragErr *Error
	if !errors.As(err, &ragErr) || ragErr.Backend != "vector" {
		t.Fatalf("Answer() error = %v, want vector backend error", err)
	}
}
