package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryVectorStore is the default VectorStore: one in-process index per
// document. Writes replace a document's snapshot wholesale under the write
// lock, so concurrent readers never observe a partially populated index.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	indexes map[string]*documentIndex
}

type documentIndex struct {
	modelVersion string
	dimension    int
	entries      []IndexEntry
}

// NewMemoryVectorStore creates an empty store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{indexes: make(map[string]*documentIndex)}
}

// Upsert replaces the document's index with the given entries in one atomic
// snapshot swap. All entries must share one dimensionality.
func (s *MemoryVectorStore) Upsert(ctx context.Context, documentID, modelVersion string, entries []IndexEntry) error {
	if len(entries) == 0 {
		return s.Delete(ctx, documentID)
	}

	dimension := len(entries[0].Embedding)
	snapshot := make([]IndexEntry, len(entries))
	for i, e := range entries {
		if len(e.Embedding) != dimension {
			return fmt.Errorf("%w: entry %d has dimension %d, expected %d",
				ErrDimensionMismatch, i, len(e.Embedding), dimension)
		}
		snapshot[i] = e
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].ChunkIndex < snapshot[j].ChunkIndex
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[documentID] = &documentIndex{
		modelVersion: modelVersion,
		dimension:    dimension,
		entries:      snapshot,
	}
	return nil
}

// Query returns up to k entries ranked by (cos+1)/2 similarity, ties broken
// by ascending chunk ordinal. Unknown or empty documents yield an empty
// result.
func (s *MemoryVectorStore) Query(ctx context.Context, documentID string, queryVector []float32, k int) ([]SearchResult, error) {
	s.mu.RLock()
	idx, ok := s.indexes[documentID]
	s.mu.RUnlock()
	if !ok || len(idx.entries) == 0 {
		return nil, nil
	}
	if len(queryVector) != idx.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d",
			ErrDimensionMismatch, len(queryVector), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(idx.entries))
	for _, e := range idx.entries {
		results = append(results, SearchResult{
			ChunkID:      e.ChunkID,
			ChunkIndex:   e.ChunkIndex,
			Content:      e.Content,
			ChapterTitle: e.ChapterTitle,
			Similarity:   cosineScore(queryVector, e.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes the document's index; a no-op when absent.
func (s *MemoryVectorStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, documentID)
	return nil
}

// Count reports the number of entries indexed for the document.
func (s *MemoryVectorStore) Count(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[documentID]; ok {
		return len(idx.entries), nil
	}
	return 0, nil
}

// ModelVersion reports the embedding model the document's index was built
// with; empty when the document has no index.
func (s *MemoryVectorStore) ModelVersion(ctx context.Context, documentID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[documentID]; ok {
		return idx.modelVersion, nil
	}
	return "", nil
}
