package model

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey          string
	EmbedModel      string // e.g. "gemini-embedding-001"
	CompletionModel string // e.g. "gemini-2.5-flash"

	// OutputDimension truncates embeddings to the vector store's declared
	// dimension. Zero keeps the model default.
	OutputDimension int
}

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGemini creates the backend and its underlying client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("model: creating gemini client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

// Name implements Backend.
func (g *Gemini) Name() string { return "gemini" }

// Embed implements Backend.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	var config *genai.EmbedContentConfig
	if g.cfg.OutputDimension > 0 {
		config = &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(g.cfg.OutputDimension)),
		}
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.cfg.EmbedModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, config)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}

// Complete implements Backend.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.CompletionModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini complete: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini complete: empty response")
	}
	return text, nil
}
