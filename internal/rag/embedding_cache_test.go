package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_LocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewEmbeddingCache(nil, "", time.Hour)

	_, ok := cache.Get(ctx, "hello", "model-a")
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, "hello", "model-a", []float32{1, 2, 3}))

	vec, ok := cache.Get(ctx, "hello", "model-a")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, vec)

	// A different model version is a different key.
	_, ok = cache.Get(ctx, "hello", "model-b")
	require.False(t, ok)
}

func TestCachedProvider_AvoidsRepeatCalls(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	cached := NewCachedEmbeddingProvider(embedder, NewEmbeddingCache(nil, "", time.Hour))

	first, err := cached.Embed(ctx, "some text")
	require.NoError(t, err)
	callsAfterFirst := embedder.calls

	second, err := cached.Embed(ctx, "some text")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, callsAfterFirst, embedder.calls)
}

func TestCachedProvider_BatchPreservesOrder(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	cached := NewCachedEmbeddingProvider(embedder, NewEmbeddingCache(nil, "", time.Hour))

	// Warm one entry so the batch mixes hits and misses.
	warm, err := cached.Embed(ctx, "beta")
	require.NoError(t, err)

	texts := []string{"alpha", "beta", "gamma"}
	vectors, err := cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, warm, vectors[1])

	for i, text := range texts {
		direct, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		require.Equal(t, direct, vectors[i], "vector %d out of order", i)
	}
}

func TestCachedProvider_PropagatesFailure(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	embedder.failWith = errors.New("provider down")
	cached := NewCachedEmbeddingProvider(embedder, NewEmbeddingCache(nil, "", time.Hour))

	_, err := cached.Embed(ctx, "uncached text")
	require.Error(t, err)
}
