// Package knowledge integrates the external knowledge-graph processor, an
// out-of-process program reached over a pipe. The capability is two
// operations, add and search, regardless of what language the processor
// is written in: one JSON request line on its stdin, one JSON response
// line on its stdout.
package knowledge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/serapeum-ai/serapeum/internal/rag"
)

// SearchType is the processor's search mode enumeration. Values outside
// the set are rejected before any dispatch.
type SearchType string

const (
	SearchGraphCompletion SearchType = "GRAPH_COMPLETION"
	SearchRAGCompletion   SearchType = "RAG_COMPLETION"
	SearchSummaries       SearchType = "SUMMARIES"
	SearchChunks          SearchType = "CHUNKS"
)

// DefaultSearchType is used when a caller omits the type.
const DefaultSearchType = SearchGraphCompletion

// ParseSearchType validates a wire value. Empty selects the default;
// anything else outside the enumeration is a configuration error.
func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(s) {
	case "":
		return DefaultSearchType, nil
	case SearchGraphCompletion, SearchRAGCompletion, SearchSummaries, SearchChunks:
		return SearchType(s), nil
	default:
		return "", rag.Configurationf(
			"unknown search type %q, must be one of GRAPH_COMPLETION, RAG_COMPLETION, SUMMARIES, CHUNKS", s)
	}
}

// request is one protocol message to the processor.
type request struct {
	Op    string `json:"op"` // "add", "search" or "ping"
	Text  string `json:"text,omitempty"`
	Query string `json:"query,omitempty"`
	Type  string `json:"type,omitempty"`
}

// response is the processor's reply.
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Subprocess runs the processor program once per call. The context bounds
// the subprocess lifetime, so a timeout kills it like any backend
// failure.
type Subprocess struct {
	command string
	args    []string
	logger  *slog.Logger
}

// NewSubprocess configures the processor invocation.
func NewSubprocess(command string, args []string, logger *slog.Logger) (*Subprocess, error) {
	if command == "" {
		return nil, fmt.Errorf("knowledge: processor command is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subprocess{command: command, args: args, logger: logger}, nil
}

// Add submits text for knowledge-graph processing and returns the raw
// processor result.
func (p *Subprocess) Add(ctx context.Context, text string) (json.RawMessage, error) {
	return p.roundTrip(ctx, request{Op: "add", Text: text})
}

// Search runs a typed search against the processor.
func (p *Subprocess) Search(ctx context.Context, query string, searchType SearchType) (json.RawMessage, error) {
	return p.roundTrip(ctx, request{Op: "search", Query: query, Type: string(searchType)})
}

// Ping probes the processor with a no-op request. Used as the optional
// startup probe.
func (p *Subprocess) Ping(ctx context.Context) error {
	_, err := p.roundTrip(ctx, request{Op: "ping"})
	return err
}

func (p *Subprocess) roundTrip(ctx context.Context, req request) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: encoding request: %w", err)
	}
	payload = append(payload, '\n')

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("knowledge: processor timed out: %w", ctx.Err())
		}
		p.logger.Warn("knowledge processor failed",
			"op", req.Op, "error", err, "stderr", stderr.String())
		return nil, fmt.Errorf("knowledge: processor exited: %w", err)
	}

	line, err := bufio.NewReader(&stdout).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("knowledge: processor produced no response")
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("knowledge: decoding response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("knowledge: processor error: %s", resp.Error)
	}
	return resp.Result, nil
}
