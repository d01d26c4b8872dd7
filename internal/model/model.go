// Package model provides the embedding and generation backends. Two
// implementations share one Backend interface: Gemini through the genai
// SDK, and any OpenAI-compatible server (LM Studio, Ollama's OpenAI
// endpoint, OpenAI itself) through the openai-go SDK.
//
// Embedding supports an ordered fallback chain; generation deliberately
// does not — a generation failure surfaces to the caller.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/serapeum-ai/serapeum/internal/rag"
)

// Backend is a single model server able to embed text and produce
// completions.
type Backend interface {
	// Name identifies the backend in logs and error messages.
	Name() string

	// Embed converts text to a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Complete returns a free-text completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// FallbackEmbedder tries backends in order and returns the first vector
// produced. It implements rag.Embedder.
type FallbackEmbedder struct {
	backends []Backend
	logger   *slog.Logger
}

// NewFallbackEmbedder builds the chain. At least one backend is required.
func NewFallbackEmbedder(logger *slog.Logger, backends ...Backend) (*FallbackEmbedder, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("model: at least one embedding backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackEmbedder{backends: backends, logger: logger}, nil
}

// Embed walks the chain. A failure of a non-final backend is logged and
// the next backend is tried; when every backend fails the joined errors
// come back as a backend failure naming the embedding capability.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var errs []error
	for i, b := range f.backends {
		vec, err := b.Embed(ctx, text)
		if err == nil {
			if i > 0 {
				f.logger.Warn("embedding served by fallback backend",
					"backend", b.Name(), "attempt", i+1)
			}
			return vec, nil
		}
		f.logger.Warn("embedding backend failed",
			"backend", b.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}
	return nil, rag.BackendError("embedding", errors.Join(errs...))
}

// Generator adapts a single Backend to rag.Generator. There is no
// fallback on the generation path.
type Generator struct {
	backend Backend
}

// NewGenerator wraps the backend used for answer synthesis.
func NewGenerator(backend Backend) (*Generator, error) {
	if backend == nil {
		return nil, fmt.Errorf("model: generation backend is required")
	}
	return &Generator{backend: backend}, nil
}

// Complete produces a completion for an arbitrary prompt.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := g.backend.Complete(ctx, prompt)
	if err != nil {
		return "", rag.BackendError("generation", fmt.Errorf("%s: %w", g.backend.Name(), err))
	}
	return text, nil
}

// CompleteWithContext renders the RAG synthesis template over the
// retrieved context documents and completes it.
func (g *Generator) CompleteWithContext(ctx context.Context, query string, contextDocs []string) (string, error) {
	return g.Complete(ctx, ragPrompt(query, contextDocs))
}
