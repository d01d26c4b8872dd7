package mcp

import (
	"encoding/json"
	"errors"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/serapeum-ai/serapeum/internal/rag"
)

// errorResult converts a pipeline error to an error tool result. Only
// the redacted form reaches the client: error kind and backend name,
// never wrapped driver messages, DSNs or file paths. The full error is
// logged server-side.
func (s *Server) errorResult(err error) *sdk.CallToolResult {
	var ragErr *rag.Error
	if errors.As(err, &ragErr) {
		s.logger.Warn("tool call failed",
			"kind", ragErr.Kind.String(), "backend", ragErr.Backend, "error", err)
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: ragErr.Redacted()}},
			IsError: true,
		}
	}

	s.logger.Error("tool call failed with unclassified error", "error", err)
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: "internal error"}},
		IsError: true,
	}
}

// jsonResult marshals data into a single text content block. All tool
// outputs are JSON; clients parse the text.
func jsonResult(data any) *sdk.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "marshal error"}},
			IsError: true,
		}
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(b)}},
	}
}

// rawResult passes through JSON already produced by the knowledge
// processor.
func rawResult(raw json.RawMessage) *sdk.CallToolResult {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(raw)}},
	}
}
