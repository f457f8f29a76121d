package rag

import "context"

// EmbeddingProvider abstracts the external embedding model behind a uniform
// contract. EmbedBatch returns one vector per input text, in input order, all
// with the provider's fixed dimensionality. Implementations own batching,
// timeouts and retry; exhausted retries surface as ErrEmbeddingService.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the embedding model version. Vectors from different
	// model versions are never comparable; the pipeline re-embeds a whole
	// document when this changes.
	Model() string

	// Dimension is the fixed vector length for this model version.
	Dimension() int
}
