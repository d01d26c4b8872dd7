package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

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

// Server wraps the MCP SDK server around the RAG pipelines. Tools for
// optional capabilities are always listed; calling one while its backend
// is down returns an error result, not a protocol failure, so clients
// learn about degradation instead of disconnecting.
type Server struct {
	mcpServer *sdk.Server
	querier   Querier
	ingestor  Ingestor
	documents DocumentStore
	graph     GraphReader
	knowledge Knowledge
	avail     rag.Availability
	logger    *slog.Logger
}

// Config holds MCP server configuration. Querier, Ingestor and
// Documents are mandatory; Graph and Knowledge may be nil when their
// startup probe failed, with Availability carrying the probe results.
type Config struct {
	Name    string
	Version string

	Querier   Querier
	Ingestor  Ingestor
	Documents DocumentStore
	Graph     GraphReader
	Knowledge Knowledge

	Availability rag.Availability

	Logger *slog.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Querier == nil || cfg.Ingestor == nil || cfg.Documents == nil {
		return nil, fmt.Errorf("querier, ingestor and document store are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		querier:   cfg.Querier,
		ingestor:  cfg.Ingestor,
		documents: cfg.Documents,
		graph:     cfg.Graph,
		knowledge: cfg.Knowledge,
		avail:     cfg.Availability,
		logger:    logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	s.logger.Info("MCP server starting",
		"graph_available", s.avail.Graph, "knowledge_available", s.avail.Knowledge)
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) graphAvailable() bool {
	return s.avail.Graph && s.graph != nil
}

func (s *Server) knowledgeAvailable() bool {
	return s.avail.Knowledge && s.knowledge != nil
}
