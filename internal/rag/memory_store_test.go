package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func entriesFor(vectors map[string][]float32, order []string) []IndexEntry {
	entries := make([]IndexEntry, len(order))
	for i, id := range order {
		entries[i] = IndexEntry{
			ChunkID:    id,
			ChunkIndex: i,
			Content:    "content " + id,
			Embedding:  vectors[id],
		}
	}
	return entries
}

func TestMemoryStore_RankingOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	err := store.Upsert(ctx, "doc", "model-a", entriesFor(map[string][]float32{
		"exact":      {1, 0, 0},
		"close":      {1, 0.5, 0},
		"orthogonal": {0, 1, 0},
		"opposite":   {-1, 0, 0},
	}, []string{"exact", "close", "orthogonal", "opposite"}))
	require.NoError(t, err)

	results, err := store.Query(ctx, "doc", []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.Equal(t, "exact", results[0].ChunkID)
	require.Equal(t, "close", results[1].ChunkID)
	require.Equal(t, "orthogonal", results[2].ChunkID)
	require.Equal(t, "opposite", results[3].ChunkID)

	require.InDelta(t, 1.0, results[0].Similarity, 1e-9)
	require.InDelta(t, 0.5, results[2].Similarity, 1e-9)
	require.InDelta(t, 0.0, results[3].Similarity, 1e-9)
}

func TestMemoryStore_TieBreakByChunkIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	// Two identical vectors tie exactly; the lower ordinal must come first.
	err := store.Upsert(ctx, "doc", "model-a", []IndexEntry{
		{ChunkID: "b", ChunkIndex: 5, Embedding: []float32{1, 1}},
		{ChunkID: "a", ChunkIndex: 2, Embedding: []float32{1, 1}},
	})
	require.NoError(t, err)

	results, err := store.Query(ctx, "doc", []float32{1, 1}, 2)
	require.NoError(t, err)
	require.Equal(t, "a", results[0].ChunkID)
	require.Equal(t, "b", results[1].ChunkID)
}

func TestMemoryStore_KClamping(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	require.NoError(t, store.Upsert(ctx, "doc", "model-a", []IndexEntry{
		{ChunkID: "a", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ChunkID: "b", ChunkIndex: 1, Embedding: []float32{0, 1}},
	}))

	results, err := store.Query(ctx, "doc", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = store.Query(ctx, "doc", []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestMemoryStore_UnknownDocumentEmptyResult(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	results, err := store.Query(ctx, "missing", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	err := store.Upsert(ctx, "doc", "model-a", []IndexEntry{
		{ChunkID: "a", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{ChunkID: "b", ChunkIndex: 1, Embedding: []float32{1, 0}},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, store.Upsert(ctx, "doc", "model-a", []IndexEntry{
		{ChunkID: "a", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
	}))
	_, err = store.Query(ctx, "doc", []float32{1, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_UpsertReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	require.NoError(t, store.Upsert(ctx, "doc", "model-a", []IndexEntry{
		{ChunkID: "old-1", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ChunkID: "old-2", ChunkIndex: 1, Embedding: []float32{0, 1}},
	}))
	require.NoError(t, store.Upsert(ctx, "doc", "model-b", []IndexEntry{
		{ChunkID: "new-1", ChunkIndex: 0, Embedding: []float32{1, 1}},
	}))

	count, err := store.Count(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	version, err := store.ModelVersion(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, "model-b", version)

	results, err := store.Query(ctx, "doc", []float32{1, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "new-1", results[0].ChunkID)
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	require.NoError(t, store.Upsert(ctx, "doc", "model-a", []IndexEntry{
		{ChunkID: "a", ChunkIndex: 0, Embedding: []float32{1}},
	}))
	require.NoError(t, store.Delete(ctx, "doc"))
	require.NoError(t, store.Delete(ctx, "doc"))
	require.NoError(t, store.Delete(ctx, "never-existed"))

	count, err := store.Count(ctx, "doc")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCosineScore_ZeroVector(t *testing.T) {
	require.Zero(t, cosineScore([]float32{0, 0}, []float32{1, 1}))
	require.Zero(t, cosineScore([]float32{1, 1}, []float32{0, 0}))
}
