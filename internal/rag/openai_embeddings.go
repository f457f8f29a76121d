package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// openAIBatchLimit is the maximum number of inputs per embeddings request.
const openAIBatchLimit = 2048

// OpenAIEmbeddingProvider implements EmbeddingProvider on the OpenAI
// embeddings API. Transient failures (timeouts, rate limits, 5xx) are retried
// with exponential backoff up to maxRetries before failing with
// ErrEmbeddingService.
type OpenAIEmbeddingProvider struct {
	client     *openai.Client
	model      string
	maxRetries int
	timeout    time.Duration
}

// NewOpenAIEmbeddingProvider creates a provider for the given model, falling
// back to text-embedding-3-small when none is configured.
func NewOpenAIEmbeddingProvider(apiKey, baseURL, model string, maxRetries int, timeout time.Duration) *OpenAIEmbeddingProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIEmbeddingProvider{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

// Embed converts a single text into a vector.
func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", ErrValidation)
	}
	vectors, err := p.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts texts into vectors, splitting oversized input into
// API-sized batches.
func (p *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIBatchLimit {
		end := start + openAIBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (p *OpenAIEmbeddingProvider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, ctx.Err())
			}
		}

		vectors, err := p.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !isTransientError(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, lastErr)
}

func (p *OpenAIEmbeddingProvider) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

// Model returns the embedding model version in use.
func (p *OpenAIEmbeddingProvider) Model() string { return p.model }

// Dimension returns the vector length for the configured model.
func (p *OpenAIEmbeddingProvider) Dimension() int {
	switch p.model {
	case string(openai.LargeEmbedding3):
		return 3072
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	default:
		return 1536
	}
}

// isTransientError classifies failures worth retrying: network trouble, rate
// limiting and server-side errors.
func isTransientError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout", "deadline exceeded", "connection", "rate limit",
		"429", "500", "502", "503", "504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
