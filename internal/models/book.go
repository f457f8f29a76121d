package models

import (
	"time"

	"gorm.io/datatypes"
)

// Processing lifecycle of a book. Transitions only move forward through the
// pipeline; StatusError is reachable from any non-terminal state and a re-run
// restarts the failed stage.
const (
	StatusPending    = "pending"
	StatusExtracting = "extracting"
	StatusExtracted  = "extracted"
	StatusEmbedding  = "embedding"
	StatusReady      = "ready"
	StatusError      = "error"
)

// Book is an uploaded document and its pipeline state.
type Book struct {
	ID       string `gorm:"primaryKey;size:64" json:"id"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Author   string `gorm:"size:255" json:"author,omitempty"`
	Filename string `gorm:"size:255;not null" json:"filename"`
	FileType string `gorm:"size:16;not null" json:"file_type"`
	FileSize int64  `gorm:"not null" json:"file_size"`

	// TextContent is the normalized extracted text. The raw upload is not
	// retained.
	TextContent string `gorm:"type:text" json:"-"`
	WordCount   int    `json:"word_count"`
	PageCount   int    `json:"page_count"`
	Language    string `gorm:"size:16" json:"language,omitempty"`

	ProcessingStatus string `gorm:"size:32;not null;default:pending;index" json:"processing_status"`
	ProcessingError  string `gorm:"type:text" json:"processing_error,omitempty"`

	// ContentHash fingerprints the normalized text; together with
	// EmbeddingModel it decides whether a re-run has any work to do.
	ContentHash    string `gorm:"size:64;index" json:"-"`
	EmbeddingModel string `gorm:"size:128" json:"embedding_model,omitempty"`
	ChunkCount     int    `json:"chunk_count"`
	IsEmbedded     bool   `gorm:"default:false" json:"is_embedded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Book) TableName() string { return "books" }

// BookChunk is one retrieval unit produced by chunking a book.
type BookChunk struct {
	ID           string                      `gorm:"primaryKey;size:64" json:"id"`
	BookID       string                      `gorm:"index;size:64;not null" json:"book_id"`
	ChunkIndex   int                         `gorm:"not null" json:"chunk_index"`
	Content      string                      `gorm:"type:text;not null" json:"content"`
	StartOffset  int                         `gorm:"not null" json:"start_offset"`
	EndOffset    int                         `gorm:"not null" json:"end_offset"`
	ChapterTitle string                      `gorm:"size:255" json:"chapter_title,omitempty"`
	ChapterNum   int                         `json:"chapter_number,omitempty"`
	TokenCount   int                         `json:"token_count"`
	ContentHash  string                      `gorm:"size:64" json:"-"`
	Keywords     datatypes.JSONSlice[string] `json:"keywords,omitempty"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (BookChunk) TableName() string { return "book_chunks" }
