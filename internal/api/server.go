package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/serapeum-ai/serapeum/internal/knowledge"
	"github.com/serapeum-ai/serapeum/internal/rag"
)

// Querier answers RAG queries.
type Querier interface {
	Answer(ctx context.Context, query string, topK int) (rag.Answer, error)
}

// Ingestor stores documents through the full ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, content string, metadata map[string]string) (rag.IngestResult, error)
}

// DocumentStore reads stored documents by id.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*rag.Document, error)
}

// GraphReader lists graph nodes by label.
type GraphReader interface {
	NodesByLabel(ctx context.Context, label string, limit int) ([]map[string]any, error)
}

// Knowledge is the external knowledge-graph processor surface.
type Knowledge interface {
	Add(ctx context.Context, text string) (json.RawMessage, error)
	Search(ctx context.Context, query string, searchType knowledge.SearchType) (json.RawMessage, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	Querier   Querier       // Required
	Ingestor  Ingestor      // Required
	Documents DocumentStore // Required
	Graph     GraphReader   // Optional: nil means graph routes answer 503
	Knowledge Knowledge     // Optional: nil means knowledge routes answer 503

	Availability rag.Availability

	TrustProxy bool // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst  int  // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Querier == nil || cfg.Ingestor == nil || cfg.Documents == nil {
		return nil, errors.New("querier, ingestor and document store are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		logger:    logger,
		querier:   cfg.Querier,
		ingestor:  cfg.Ingestor,
		documents: cfg.Documents,
		graph:     cfg.Graph,
		knowledge: cfg.Knowledge,
		avail:     cfg.Availability,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", h.query)
	mux.HandleFunc("POST /api/v1/documents", h.storeDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.getDocument)
	mux.HandleFunc("GET /api/v1/graph/{label}", h.graphNodes)
	mux.HandleFunc("POST /api/v1/knowledge/add", h.knowledgeAdd)
	mux.HandleFunc("POST /api/v1/knowledge/search", h.knowledgeSearch)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first: Recovery -> Logging -> RateLimit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.Handle("GET /health", health(cfg.Availability))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// health reports liveness plus the capability availability snapshot
// taken at startup.
func health(avail rag.Availability) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"capabilities": map[string]bool{
				"vector":    avail.Vector,
				"graph":     avail.Graph,
				"knowledge": avail.Knowledge,
			},
		})
	})
}
