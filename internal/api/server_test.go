package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/serapeum-ai/serapeum/internal/knowledge"
	"github.com/serapeum-ai/serapeum/internal/log"
	"github.com/serapeum-ai/serapeum/internal/rag"
)

type fakeQuerier struct {
	answer rag.Answer
	err    error
	topK   int
}

func (f *fakeQuerier) Answer(_ context.Context, query string, topK int) (rag.Answer, error) {
	f.topK = topK
	if f.err != nil {
		return rag.Answer{}, f.err
	}
	if strings.TrimSpace(query) == "" {
		return rag.Answer{}, rag.Validationf("query is required")
	}
	return f.answer, nil
}

type fakeIngestor struct {
	result rag.IngestResult
	err    error
}

func (f *fakeIngestor) Ingest(_ context.Context, content string, _ map[string]string) (rag.IngestResult, error) {
	if f.err != nil {
		return rag.IngestResult{}, f.err
	}
	if strings.TrimSpace(content) == "" {
		return rag.IngestResult{}, rag.Validationf("content is required")
	}
	return f.result, nil
}

type fakeDocuments struct {
	docs map[string]*rag.Document
	err  error
}

func (f *fakeDocuments) Get(_ context.Context, id string) (*rag.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[id], nil
}

type fakeGraphReader struct {
	nodes []map[string]any
	err   error
	label string
	limit int
}

func (f *fakeGraphReader) NodesByLabel(_ context.Context, label string, limit int) ([]map[string]any, error) {
	f.label = label
	f.limit = limit
	return f.nodes, f.err
}

type fakeKnowledge struct {
	result     json.RawMessage
	err        error
	searchType knowledge.SearchType
}

func (f *fakeKnowledge) Add(context.Context, string) (json.RawMessage, error) {
	return f.result, f.err
}

func (f *fakeKnowledge) Search(_ context.Context, _ string, searchType knowledge.SearchType) (json.RawMessage, error) {
	f.searchType = searchType
	return f.result, f.err
}

type fixture struct {
	querier   *fakeQuerier
	ingestor  *fakeIngestor
	documents *fakeDocuments
	graph     *fakeGraphReader
	knowledge *fakeKnowledge
}

func newFixture() *fixture {
	return &fixture{
		querier:   &fakeQuerier{answer: rag.Answer{Response: "an answer"}},
		ingestor:  &fakeIngestor{result: rag.IngestResult{Document: rag.Document{ID: "doc-1"}, Outcome: rag.OutcomeStored}},
		documents: &fakeDocuments{docs: map[string]*rag.Document{}},
		graph:     &fakeGraphReader{},
		knowledge: &fakeKnowledge{result: json.RawMessage(`{"ok":true}`)},
	}
}

func (fx *fixture) config() ServerConfig {
	return ServerConfig{
		Logger:    log.NewNop(),
		Querier:   fx.querier,
		Ingestor:  fx.ingestor,
		Documents: fx.documents,
		Graph:     fx.graph,
		Knowledge: fx.knowledge,
		Availability: rag.Availability{
			Vector:    true,
			Graph:     true,
			Knowledge: true,
		},
	}
}

func newTestServer(t *testing.T, cfg ServerConfig) *httptest.Server {
	t.Helper()
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealth(t *testing.T) {
	fx := newFixture()
	cfg := fx.config()
	cfg.Availability.Knowledge = false
	ts := newTestServer(t, cfg)

	resp := get(t, ts, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health status = %d", resp.StatusCode)
	}

	var body struct {
		Status       string          `json:"status"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if !body.Capabilities["vector"] || body.Capabilities["knowledge"] {
		t.Errorf("capabilities = %v", body.Capabilities)
	}
}

func TestQuery(t *testing.T) {
	fx := newFixture()
	fx.querier.answer = rag.Answer{Query: "q", Response: "grounded answer"}
	ts := newTestServer(t, fx.config())

	resp := postJSON(t, ts, "/api/v1/query", `{"query":"q","top_k":3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var answer rag.Answer
	decodeBody(t, resp, &answer)
	if answer.Response != "grounded answer" {
		t.Errorf("Response = %q", answer.Response)
	}
	if fx.querier.topK != 3 {
		t.Errorf("topK = %d, want 3", fx.querier.topK)
	}
}

func TestQueryValidation(t *testing.T) {
	ts := newTestServer(t, newFixture().config())

	resp := postJSON(t, ts, "/api/v1/query", `{"query":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != "validation" {
		t.Errorf("error code = %q", env.Error.Code)
	}
}

func TestQueryMalformedBody(t *testing.T) {
	ts := newTestServer(t, newFixture().config())

	resp := postJSON(t, ts, "/api/v1/query", `{"query":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQueryBackendErrorRedacted(t *testing.T) {
	fx := newFixture()
	fx.querier.err = rag.BackendError("vector", errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	ts := newTestServer(t, fx.config())

	resp := postJSON(t, ts, "/api/v1/query", `{"query":"q"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}

	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Message != "vector backend failure" {
		t.Errorf("message = %q, want redacted", env.Error.Message)
	}
	if strings.Contains(env.Error.Message, "10.0.0.5") {
		t.Error("error message leaks backend address")
	}
}

func TestStoreDocument(t *testing.T) {
	fx := newFixture()
	fx.ingestor.result = rag.IngestResult{
		Document:          rag.Document{ID: "doc-9"},
		Outcome:           rag.OutcomeDegraded,
		FailedEnrichments: []string{"knowledge"},
	}
	ts := newTestServer(t, fx.config())

	resp := postJSON(t, ts, "/api/v1/documents", `{"content":"hello","metadata":{"title":"t"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body struct {
		ID                string   `json:"id"`
		Outcome           string   `json:"outcome"`
		FailedEnrichments []string `json:"failed_enrichments"`
	}
	decodeBody(t, resp, &body)
	if body.ID != "doc-9" || body.Outcome != "degraded" {
		t.Errorf("body = %+v", body)
	}
}

func TestGetDocument(t *testing.T) {
	fx := newFixture()
	fx.documents.docs["doc-1"] = &rag.Document{ID: "doc-1", Content: "stored"}
	ts := newTestServer(t, fx.config())

	resp := get(t, ts, "/api/v1/documents/doc-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var doc rag.Document
	decodeBody(t, resp, &doc)
	if doc.Content != "stored" {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	ts := newTestServer(t, newFixture().config())

	resp := get(t, ts, "/api/v1/documents/absent")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != "not_found" {
		t.Errorf("error code = %q", env.Error.Code)
	}
}

func TestGraphNodes(t *testing.T) {
	fx := newFixture()
	fx.graph.nodes = []map[string]any{{"labels": []any{"Document"}}}
	ts := newTestServer(t, fx.config())

	resp := get(t, ts, "/api/v1/graph/Document?limit=7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fx.graph.label != "Document" || fx.graph.limit != 7 {
		t.Errorf("graph call = (%q, %d)", fx.graph.label, fx.graph.limit)
	}
}

func TestGraphUnavailable(t *testing.T) {
	fx := newFixture()
	cfg := fx.config()
	cfg.Availability.Graph = false
	ts := newTestServer(t, cfg)

	resp := get(t, ts, "/api/v1/graph/Document")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if fx.graph.label != "" {
		t.Error("graph backend called despite unavailability")
	}
}

func TestKnowledgeSearch(t *testing.T) {
	fx := newFixture()
	ts := newTestServer(t, fx.config())

	resp := postJSON(t, ts, "/api/v1/knowledge/search", `{"query":"find","search_type":"CHUNKS"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fx.knowledge.searchType != knowledge.SearchChunks {
		t.Errorf("search type = %q", fx.knowledge.searchType)
	}
}

func TestKnowledgeSearchUnknownType(t *testing.T) {
	fx := newFixture()
	ts := newTestServer(t, fx.config())

	resp := postJSON(t, ts, "/api/v1/knowledge/search", `{"query":"find","search_type":"EVERYTHING"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != "configuration" {
		t.Errorf("error code = %q, want configuration", env.Error.Code)
	}
	if fx.knowledge.searchType != "" {
		t.Error("processor dispatched despite invalid search type")
	}
}

func TestKnowledgeUnavailable(t *testing.T) {
	fx := newFixture()
	cfg := fx.config()
	cfg.Availability.Knowledge = false
	ts := newTestServer(t, cfg)

	for _, path := range []string{"/api/v1/knowledge/add", "/api/v1/knowledge/search"} {
		resp := postJSON(t, ts, path, `{"text":"x","query":"x"}`)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("POST %s status = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestRateLimiting(t *testing.T) {
	fx := newFixture()
	cfg := fx.config()
	cfg.RateBurst = 2
	ts := newTestServer(t, cfg)

	statuses := make([]int, 0, 3)
	for range 3 {
		resp := get(t, ts, "/api/v1/documents/absent")
		statuses = append(statuses, resp.StatusCode)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %v, want 429", statuses)
	}
	if statuses[0] == http.StatusTooManyRequests || statuses[1] == http.StatusTooManyRequests {
		t.Errorf("requests within burst were limited: %v", statuses)
	}
}

func TestNewServerValidation(t *testing.T) {
	cfg := newFixture().config()
	cfg.Querier = nil
	if _, err := NewServer(cfg); err == nil {
		t.Error("NewServer() without querier: want error")
	}
}
