// Package aitest provides in-memory stand-ins for the hosted LLM and
// embeddings APIs.
package aitest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

const Dimensions = 256

// Embedder is a deterministic bag-of-words embedder. Texts sharing words get
// similar vectors. It implements both ai.Embedder and embeddings.EmbedderClient.
type Embedder struct {
	mu        sync.Mutex
	Err       error
	FailTimes int // fail the first N calls with Err, then succeed
	// Short drops the last vector of every batch when set.
	Short bool
	calls int
}

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.Err != nil && (e.FailTimes == 0 || call <= e.FailTimes) {
		return nil, e.Err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, Vector(t))
	}
	if e.Short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.CreateEmbedding(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := e.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Vector returns the normalized embedding of text. It is never the zero vector.
func Vector(text string) []float32 {
	v := make([]float32, Dimensions)
	v[Dimensions-1] = 0.01
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%(Dimensions-1)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Model is a scripted llms.Model. Each call streams Chunks through the
// streaming callback and then returns Err, if set.
type Model struct {
	mu      sync.Mutex
	Chunks  []string
	Err     error
	Gate    chan struct{} // when non-nil, generation waits for it to be closed
	prompts []string
}

var _ llms.Model = (*Model)(nil)

func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *Model) Calls() int {
	return len(m.Prompts())
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt.String())
	m.mu.Unlock()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, chunk := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: strings.Join(m.Chunks, "")}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
