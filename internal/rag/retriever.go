package rag

import (
	"context"
	"fmt"
	"strings"
)

// Retriever turns a natural-language question into ranked passages from one
// document's index. It refuses to serve from an index built with a different
// embedding model version than the provider currently in use.
type Retriever struct {
	provider    EmbeddingProvider
	store       VectorStore
	maxTopK     int
	defaultTopK int
}

// NewRetriever wires a retriever. maxTopK caps the per-query result count
// (default 20); defaultTopK applies when the caller does not ask for a count
// (default 5).
func NewRetriever(provider EmbeddingProvider, store VectorStore, maxTopK, defaultTopK int) *Retriever {
	if maxTopK <= 0 {
		maxTopK = 20
	}
	if defaultTopK <= 0 || defaultTopK > maxTopK {
		defaultTopK = 5
	}
	return &Retriever{provider: provider, store: store, maxTopK: maxTopK, defaultTopK: defaultTopK}
}

// Retrieve embeds the query and returns up to k passages ranked by
// similarity. k is clamped to [1, maxTopK] and further bounded by the index
// size. An empty index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, documentID, query string, k int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}

	count, err := r.store.Count(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("count index entries: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	indexModel, err := r.store.ModelVersion(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("read index model version: %w", err)
	}
	if indexModel != "" && indexModel != r.provider.Model() {
		return nil, fmt.Errorf("%w: index built with %q, provider uses %q",
			ErrStaleIndex, indexModel, r.provider.Model())
	}

	if k <= 0 {
		k = r.defaultTopK
	}
	if k > r.maxTopK {
		k = r.maxTopK
	}
	if k > count {
		k = count
	}

	queryVector, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return r.store.Query(ctx, documentID, queryVector, k)
}
