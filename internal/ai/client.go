package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrEmbeddingService    = errors.New("embedding service error")
	ErrGenerationService   = errors.New("generation service error")
	ErrModelNotInitialized = errors.New("model not initialized")
)

// Embedder turns text into vectors. *Client implements it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator streams a completion for a single prompt.
type Generator interface {
	StreamComplete(ctx context.Context, prompt string, onChunk func(chunk string) error) (string, error)
}

type Options struct {
	BatchSize      int
	Retries        int
	RetryInterval  time.Duration
	RequestTimeout time.Duration
	StreamTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = 5 * time.Minute
	}
	return o
}

// Client pairs a generative model with an embeddings endpoint from the same provider.
type Client struct {
	model    llms.Model
	embedder *embeddings.EmbedderImpl
	raw      embeddings.EmbedderClient
	opts     Options
}

func NewClient(model llms.Model, embedderClient embeddings.EmbedderClient, opts Options) (*Client, error) {
	if model == nil || embedderClient == nil {
		return nil, ErrModelNotInitialized
	}
	c := &Client{
		model: model,
		raw:   embedderClient,
		opts:  opts.withDefaults(),
	}
	embedder, err := embeddings.NewEmbedder(
		embeddings.EmbedderClientFunc(c.createEmbedding),
		embeddings.WithBatchSize(c.opts.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder failed: %w", err)
	}
	c.embedder = embedder
	return c, nil
}

// EmbedDocuments embeds texts in batches. The result has one vector per input.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, wrapEmbedding(err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedding count mismatch: got %d, want %d", ErrEmbeddingService, len(vectors), len(texts))
	}
	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: embedding input is empty", ErrEmbeddingService)
	}
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, wrapEmbedding(err)
	}
	return vector, nil
}

// createEmbedding sends one batch, retrying transient failures with exponential backoff.
func (c *Client) createEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	operation := func() ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()

		vectors, err := c.raw.CreateEmbedding(callCtx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, backoff.Permanent(fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts)))
		}
		return vectors, nil
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.opts.RetryInterval),
		backoff.WithMaxInterval(10*time.Second),
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.Retries)), ctx)
	return backoff.RetryWithData(operation, policy)
}

// StreamComplete sends prompt as a single human message and calls onChunk for
// every fragment in arrival order. An error from onChunk aborts the upstream
// stream and is returned unchanged.
func (c *Client) StreamComplete(ctx context.Context, prompt string, onChunk func(chunk string) error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.StreamTimeout)
	defer cancel()

	var (
		full        strings.Builder
		callbackErr error
	)
	resp, err := c.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			full.Write(chunk)
			if err := onChunk(string(chunk)); err != nil {
				callbackErr = err
				return err
			}
			return nil
		}),
	)
	if callbackErr != nil {
		return "", callbackErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationService, err)
	}

	// Providers that ignore the streaming option return the whole answer at once.
	if full.Len() == 0 && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
		text := resp.Choices[0].Content
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

func wrapEmbedding(err error) error {
	if errors.Is(err, ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingService, err)
}
