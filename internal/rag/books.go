package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chaptr/internal/logger"
	"chaptr/internal/models"
)

// ExtractedText is the outcome of pulling text out of an uploaded file.
type ExtractedText struct {
	Text      string
	PageCount int
	WordCount int
}

// Extractor turns uploaded files into normalized text and finds chapter
// boundaries in it. Implementations live outside this package so the pipeline
// stays independent of file-format details.
type Extractor interface {
	Supported(filename string) bool
	Extract(filename string, data []byte) (*ExtractedText, error)
	DetectChapters(text string) []ChapterBoundary
}

// BookService owns the document records: upload, lookup, listing, deletion.
type BookService struct {
	db        *gorm.DB
	store     VectorStore
	extractor Extractor
	maxBytes  int64
}

// NewBookService wires a book service. maxBytes caps upload size; zero means
// 50 MB.
func NewBookService(db *gorm.DB, store VectorStore, extractor Extractor, maxBytes int64) *BookService {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &BookService{db: db, store: store, extractor: extractor, maxBytes: maxBytes}
}

// Create registers an uploaded file: extracts its text immediately (the raw
// upload is not retained) and stores the book in the pending state.
func (s *BookService) Create(ctx context.Context, filename, title, author string, data []byte) (*models.Book, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if !s.extractor.Supported(filename) {
		return nil, fmt.Errorf("%w: unsupported file type for %q", ErrValidation, filename)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds the %d byte limit", ErrValidation, s.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", ErrEmptyInput)
	}

	extracted, err := s.extractor.Extract(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return nil, fmt.Errorf("%w: file contains no extractable text", ErrEmptyInput)
	}

	if title == "" {
		title = filename
	}
	book := &models.Book{
		ID:               uuid.NewString(),
		Title:            title,
		Author:           author,
		Filename:         filename,
		FileType:         fileType(filename),
		FileSize:         int64(len(data)),
		TextContent:      extracted.Text,
		WordCount:        extracted.WordCount,
		PageCount:        extracted.PageCount,
		ProcessingStatus: models.StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(book).Error; err != nil {
		return nil, fmt.Errorf("create book record: %w", err)
	}

	logger.WithContext(ctx).Info("book uploaded",
		zap.String("book_id", book.ID),
		zap.String("filename", filename),
		zap.Int("word_count", book.WordCount))
	return book, nil
}

// Get loads one book by id.
func (s *BookService) Get(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	err := s.db.WithContext(ctx).First(&book, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	return &book, nil
}

// List returns all books, newest first.
func (s *BookService) List(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// Chunks returns the book's chunks in document order.
func (s *BookService) Chunks(ctx context.Context, id string) ([]models.BookChunk, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	var chunks []models.BookChunk
	err := s.db.WithContext(ctx).
		Where("book_id = ?", id).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return chunks, nil
}

// Delete removes the book, its chunks and its vector index.
func (s *BookService) Delete(ctx context.Context, id string) error {
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&models.BookChunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(book).Error
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete vector index: %w", err)
	}

	logger.WithContext(ctx).Info("book deleted", zap.String("book_id", id))
	return nil
}

func fileType(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return strings.ToLower(filename[i+1:])
	}
	return ""
}
