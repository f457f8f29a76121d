package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// BookVector is the pgvector-backed row for one indexed chunk.
type BookVector struct {
	ChunkID      string          `gorm:"primaryKey;size:64"`
	DocumentID   string          `gorm:"index;size:64;not null"`
	ChunkIndex   int             `gorm:"not null"`
	Content      string          `gorm:"type:text;not null"`
	ChapterTitle string          `gorm:"size:255"`
	ModelVersion string          `gorm:"size:128;not null"`
	Dimension    int             `gorm:"not null"`
	Embedding    pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt    time.Time
}

// TableName keeps the table name stable across gorm naming strategies.
func (BookVector) TableName() string { return "book_vectors" }

// PgVectorStore implements VectorStore on PostgreSQL with the pgvector
// extension. Upsert replaces a document's rows inside one transaction so a
// concurrent Query sees either the old or the new index, never a mix.
type PgVectorStore struct {
	db *gorm.DB
}

// NewPgVectorStore wires the store and ensures its schema exists.
func NewPgVectorStore(db *gorm.DB) (*PgVectorStore, error) {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	if err := db.AutoMigrate(&BookVector{}); err != nil {
		return nil, fmt.Errorf("migrate book_vectors: %w", err)
	}
	return &PgVectorStore{db: db}, nil
}

// Upsert transactionally replaces the document's index with entries.
func (s *PgVectorStore) Upsert(ctx context.Context, documentID, modelVersion string, entries []IndexEntry) error {
	if len(entries) == 0 {
		return s.Delete(ctx, documentID)
	}

	dimension := len(entries[0].Embedding)
	rows := make([]BookVector, len(entries))
	for i, e := range entries {
		if len(e.Embedding) != dimension {
			return fmt.Errorf("%w: entry %d has dimension %d, expected %d",
				ErrDimensionMismatch, i, len(e.Embedding), dimension)
		}
		rows[i] = BookVector{
			ChunkID:      e.ChunkID,
			DocumentID:   documentID,
			ChunkIndex:   e.ChunkIndex,
			Content:      e.Content,
			ChapterTitle: e.ChapterTitle,
			ModelVersion: modelVersion,
			Dimension:    dimension,
			Embedding:    pgvector.NewVector(e.Embedding),
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&BookVector{}).Error; err != nil {
			return fmt.Errorf("clear previous index: %w", err)
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("insert index entries: %w", err)
		}
		return nil
	})
}

// Query ranks the document's entries by cosine distance and maps the scores
// onto the [0,1] convention shared by every backend.
func (s *PgVectorStore) Query(ctx context.Context, documentID string, queryVector []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	var first BookVector
	err := s.db.WithContext(ctx).
		Select("dimension").
		Where("document_id = ?", documentID).
		Limit(1).Find(&first).Error
	if err != nil {
		return nil, fmt.Errorf("read index dimension: %w", err)
	}
	if first.Dimension == 0 {
		return nil, nil
	}
	if len(queryVector) != first.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d",
			ErrDimensionMismatch, len(queryVector), first.Dimension)
	}

	var rows []struct {
		ChunkID      string
		ChunkIndex   int
		Content      string
		ChapterTitle string
		Cosine       float64
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT chunk_id, chunk_index, content, chapter_title,
		       1 - (embedding <=> ?) AS cosine
		FROM book_vectors
		WHERE document_id = ?
		ORDER BY embedding <=> ?, chunk_index ASC
		LIMIT ?`,
		pgvector.NewVector(queryVector), documentID, pgvector.NewVector(queryVector), k,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	results := make([]SearchResult, len(rows))
	for i, r := range rows {
		cos := r.Cosine
		if cos > 1 {
			cos = 1
		} else if cos < -1 {
			cos = -1
		}
		results[i] = SearchResult{
			ChunkID:      r.ChunkID,
			ChunkIndex:   r.ChunkIndex,
			Content:      r.Content,
			ChapterTitle: r.ChapterTitle,
			Similarity:   (cos + 1) / 2,
		}
	}
	return results, nil
}

// Delete removes the document's rows; deleting an absent document succeeds.
func (s *PgVectorStore) Delete(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&BookVector{}).Error
}

// Count reports the number of entries indexed for the document.
func (s *PgVectorStore) Count(ctx context.Context, documentID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&BookVector{}).
		Where("document_id = ?", documentID).Count(&n).Error
	return int(n), err
}

// ModelVersion reports the embedding model the document's index was built
// with; empty when the document has no index.
func (s *PgVectorStore) ModelVersion(ctx context.Context, documentID string) (string, error) {
	var first BookVector
	err := s.db.WithContext(ctx).
		Select("model_version").
		Where("document_id = ?", documentID).
		Limit(1).Find(&first).Error
	if err != nil {
		return "", err
	}
	return first.ModelVersion, nil
}
