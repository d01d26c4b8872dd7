package model

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures an OpenAI-compatible backend. BaseURL points at
// the server's /v1 root; LM Studio and Ollama both expose this surface.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	EmbedModel      string
	CompletionModel string
	Temperature     float64
	MaxTokens       int
}

// OpenAI talks to any server speaking the OpenAI REST API.
type OpenAI struct {
	client openaisdk.Client
	cfg    OpenAIConfig
}

// NewOpenAI creates the backend. A local server needs no real API key;
// callers may pass a placeholder.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.EmbedModel == "" && cfg.CompletionModel == "" {
		return nil, fmt.Errorf("model: openai backend needs an embed or completion model")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{client: openaisdk.NewClient(opts...), cfg: cfg}, nil
}

// Name implements Backend.
func (o *OpenAI) Name() string { return "openai" }

// Embed implements Backend.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(o.cfg.EmbedModel),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Complete implements Backend.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(o.cfg.CompletionModel),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
	}
	if o.cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(o.cfg.Temperature)
	}
	if o.cfg.MaxTokens > 0 {
		// max_tokens, not max_completion_tokens: older OpenAI-compatible
		// servers (LM Studio, Ollama) only understand the former.
		params.MaxTokens = param.NewOpt(int64(o.cfg.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai complete: response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
