package mcp

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/serapeum-ai/serapeum/internal/knowledge"
	"github.com/serapeum-ai/serapeum/internal/rag"
)

// QueryInput is the input schema for rag_query.
type QueryInput struct {
	Query string `json:"query" jsonschema:"The natural-language question to answer"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Number of documents to retrieve (default 5)"`
}

// StoreDocumentInput is the input schema for store_document.
type StoreDocumentInput struct {
	Content  string            `json:"content" jsonschema:"The document text to store"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"Optional key/value metadata stored with the document"`
}

// RetrieveDocumentInput is the input schema for retrieve_document.
type RetrieveDocumentInput struct {
	ID string `json:"id" jsonschema:"The document id returned by store_document"`
}

// GraphNodesInput is the input schema for retrieve_graph_nodes.
type GraphNodesInput struct {
	Label string `json:"label" jsonschema:"Node label, one of Document, Chunk, Source"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum nodes to return (default 10)"`
}

// KnowledgeAddInput is the input schema for knowledge_add.
type KnowledgeAddInput struct {
	Text string `json:"text" jsonschema:"The text to submit to the knowledge-graph processor"`
}

// KnowledgeSearchInput is the input schema for knowledge_search.
type KnowledgeSearchInput struct {
	Query      string `json:"query" jsonschema:"The search query"`
	SearchType string `json:"search_type,omitempty" jsonschema:"One of GRAPH_COMPLETION, RAG_COMPLETION, SUMMARIES, CHUNKS (default GRAPH_COMPLETION)"`
}

func (s *Server) registerTools() error {
	if err := registerTool(s, "rag_query",
		"Answer a question using retrieval-augmented generation over the stored documents.",
		s.handleQuery); err != nil {
		return err
	}
	if err := registerTool(s, "store_document",
		"Store a document: it is chunked, embedded and persisted for later retrieval.",
		s.handleStoreDocument); err != nil {
		return err
	}
	if err := registerTool(s, "retrieve_document",
		"Retrieve a stored document by its id.",
		s.handleRetrieveDocument); err != nil {
		return err
	}
	if err := registerTool(s, "retrieve_graph_nodes",
		"List graph nodes with the given label from the knowledge graph.",
		s.handleGraphNodes); err != nil {
		return err
	}
	if err := registerTool(s, "knowledge_add",
		"Submit text to the external knowledge-graph processor.",
		s.handleKnowledgeAdd); err != nil {
		return err
	}
	return registerTool(s, "knowledge_search",
		"Search the external knowledge graph. Supports GRAPH_COMPLETION, RAG_COMPLETION, SUMMARIES and CHUNKS search types.",
		s.handleKnowledgeSearch)
}

// registerTool infers the input schema from In and binds the handler.
func registerTool[In any](s *Server, name, description string, handler func(context.Context, *sdk.CallToolRequest, In) (*sdk.CallToolResult, any, error)) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", name, err)
	}
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, handler)
	return nil
}

func (s *Server) handleQuery(ctx context.Context, _ *sdk.CallToolRequest, in QueryInput) (*sdk.CallToolResult, any, error) {
	answer, err := s.querier.Answer(ctx, in.Query, in.TopK)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	return jsonResult(answer), nil, nil
}

func (s *Server) handleStoreDocument(ctx context.Context, _ *sdk.CallToolRequest, in StoreDocumentInput) (*sdk.CallToolResult, any, error) {
	result, err := s.ingestor.Ingest(ctx, in.Content, in.Metadata)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	return jsonResult(map[string]any{
		"id":                 result.Document.ID,
		"outcome":            result.Outcome.String(),
		"failed_enrichments": result.FailedEnrichments,
	}), nil, nil
}

func (s *Server) handleRetrieveDocument(ctx context.Context, _ *sdk.CallToolRequest, in RetrieveDocumentInput) (*sdk.CallToolResult, any, error) {
	if in.ID == "" {
		return s.errorResult(rag.Validationf("id is required")), nil, nil
	}
	doc, err := s.documents.Get(ctx, in.ID)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	// A missing document is a normal lookup answer, not a tool error.
	if doc == nil {
		return jsonResult(map[string]any{"found": false}), nil, nil
	}
	return jsonResult(map[string]any{"found": true, "document": doc}), nil, nil
}

func (s *Server) handleGraphNodes(ctx context.Context, _ *sdk.CallToolRequest, in GraphNodesInput) (*sdk.CallToolResult, any, error) {
	if !s.graphAvailable() {
		return s.errorResult(rag.Unavailable("graph")), nil, nil
	}
	nodes, err := s.graph.NodesByLabel(ctx, in.Label, in.Limit)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	return jsonResult(map[string]any{"nodes": nodes, "count": len(nodes)}), nil, nil
}

func (s *Server) handleKnowledgeAdd(ctx context.Context, _ *sdk.CallToolRequest, in KnowledgeAddInput) (*sdk.CallToolResult, any, error) {
	if !s.knowledgeAvailable() {
		return s.errorResult(rag.Unavailable("knowledge")), nil, nil
	}
	if in.Text == "" {
		return s.errorResult(rag.Validationf("text is required")), nil, nil
	}
	raw, err := s.knowledge.Add(ctx, in.Text)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	return rawResult(raw), nil, nil
}

func (s *Server) handleKnowledgeSearch(ctx context.Context, _ *sdk.CallToolRequest, in KnowledgeSearchInput) (*sdk.CallToolResult, any, error) {
	if !s.knowledgeAvailable() {
		return s.errorResult(rag.Unavailable("knowledge")), nil, nil
	}
	if in.Query == "" {
		return s.errorResult(rag.Validationf("query is required")), nil, nil
	}
	// The search type is validated before the subprocess is spawned.
	searchType, err := knowledge.ParseSearchType(in.SearchType)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	raw, err := s.knowledge.Search(ctx, in.Query, searchType)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	return rawResult(raw), nil, nil
}
