package rag

import (
	"context"
	"math"
)

// IndexEntry is the unit stored by a VectorStore: one chunk's embedding plus
// the metadata needed to present a retrieved passage.
type IndexEntry struct {
	ChunkID      string
	ChunkIndex   int
	Content      string
	ChapterTitle string
	Embedding    []float32
}

// SearchResult is one ranked hit from a similarity query.
//
// Similarity convention: cosine similarity mapped onto [0,1] via (cos+1)/2.
// 1.0 means identical direction, 0.5 orthogonal, 0.0 opposite. Every backend
// applies the same mapping so scores are comparable across stores.
type SearchResult struct {
	ChunkID      string  `json:"chunk_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	ChapterTitle string  `json:"chapter,omitempty"`
	Similarity   float64 `json:"similarity"`
}

// VectorStore keeps one semantic index per document.
//
// Upsert atomically replaces the document's entries: readers either see the
// previous complete index or the new complete index, never a partial write.
// Query returns up to k entries ranked by similarity, ties broken by
// ascending chunk ordinal so identical inputs always produce identical
// output. Querying an unknown or empty document yields an empty result, not
// an error. Delete is idempotent.
type VectorStore interface {
	Upsert(ctx context.Context, documentID, modelVersion string, entries []IndexEntry) error
	Query(ctx context.Context, documentID string, queryVector []float32, k int) ([]SearchResult, error)
	Delete(ctx context.Context, documentID string) error
	Count(ctx context.Context, documentID string) (int, error)
	ModelVersion(ctx context.Context, documentID string) (string, error)
}

// cosineScore maps cosine similarity onto [0,1] via (cos+1)/2. Degenerate
// (zero-magnitude) vectors score 0.
func cosineScore(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return (cos + 1) / 2
}
