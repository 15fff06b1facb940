package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"docchat/internal/config"
)

var ErrMissingAPIKey = errors.New("llm api key is not configured")

// NewFromConfig builds a Client for the configured provider. Gemini ("googleai")
// is the default; "openai" also covers OpenAI-compatible endpoints via base_url.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	opts := Options{
		BatchSize:      cfg.EmbeddingBatchSize,
		Retries:        cfg.EmbeddingRetries,
		RequestTimeout: cfg.RequestTimeout(),
		StreamTimeout:  cfg.StreamTimeout(),
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "googleai", "gemini":
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
			googleai.WithDefaultEmbeddingModel(cfg.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("init googleai client failed: %w", err)
		}
		return NewClient(llm, llm, opts)
	case "openai":
		llmOpts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithEmbeddingModel(cfg.EmbeddingModel),
		}
		if cfg.BaseURL != "" {
			llmOpts = append(llmOpts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(llmOpts...)
		if err != nil {
			return nil, fmt.Errorf("init openai client failed: %w", err)
		}
		return NewClient(llm, llm, opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
