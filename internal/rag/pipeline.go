package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"chaptr/internal/logger"
	"chaptr/internal/metrics"
	"chaptr/internal/models"
)

// embedBatchSize is the number of chunks sent per embedding request. Small
// enough that one transient failure only retries a bounded slice of the book.
const embedBatchSize = 64

// Processor drives a book through the ingestion pipeline:
//
//	pending -> extracting -> extracted -> embedding -> ready
//
// with error reachable from any non-terminal state. At most one pipeline run
// is active per book: a second trigger fails fast with ErrConflict instead of
// queueing. Runs are idempotent; re-running a ready book whose text and
// embedding model are unchanged is a no-op.
type Processor struct {
	db        *gorm.DB
	chunker   *Chunker
	provider  EmbeddingProvider
	store     VectorStore
	extractor Extractor

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProcessor wires the pipeline.
func NewProcessor(db *gorm.DB, chunker *Chunker, provider EmbeddingProvider, store VectorStore, extractor Extractor) *Processor {
	return &Processor{
		db:        db,
		chunker:   chunker,
		provider:  provider,
		store:     store,
		extractor: extractor,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the book's single-flight mutex, creating it on first use.
func (p *Processor) lockFor(bookID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.locks[bookID]; ok {
		return l
	}
	l := &sync.Mutex{}
	p.locks[bookID] = l
	return l
}

// Process runs the extraction stage: chunk the book's text and persist the
// chunks. A concurrent run on the same book fails with ErrConflict.
func (p *Processor) Process(ctx context.Context, bookID string) error {
	lock := p.lockFor(bookID)
	if !lock.TryLock() {
		return fmt.Errorf("%w: book %s", ErrConflict, bookID)
	}
	defer lock.Unlock()
	return p.process(ctx, bookID)
}

// Index runs the embedding stage: embed the book's chunks and publish the
// vector index atomically. A concurrent run fails with ErrConflict.
func (p *Processor) Index(ctx context.Context, bookID string) error {
	lock := p.lockFor(bookID)
	if !lock.TryLock() {
		return fmt.Errorf("%w: book %s", ErrConflict, bookID)
	}
	defer lock.Unlock()
	return p.index(ctx, bookID)
}

// Run executes both stages back to back under one single-flight lock.
func (p *Processor) Run(ctx context.Context, bookID string) error {
	lock := p.lockFor(bookID)
	if !lock.TryLock() {
		return fmt.Errorf("%w: book %s", ErrConflict, bookID)
	}
	defer lock.Unlock()

	if err := p.process(ctx, bookID); err != nil {
		return err
	}
	return p.index(ctx, bookID)
}

func (p *Processor) process(ctx context.Context, bookID string) error {
	start := time.Now()
	log := logger.WithContext(ctx).With(zap.String("book_id", bookID))

	book, err := p.loadBook(ctx, bookID)
	if err != nil {
		return err
	}

	hash := hashContent(book.TextContent)
	if book.ProcessingStatus == models.StatusReady &&
		book.ContentHash == hash &&
		book.EmbeddingModel == p.provider.Model() {
		metrics.PipelineRunsTotal.WithLabelValues("process", "noop").Inc()
		log.Info("processing skipped, book unchanged")
		return nil
	}

	if err := p.transition(ctx, bookID, book.ProcessingStatus, models.StatusExtracting,
		models.StatusPending, models.StatusExtracted, models.StatusReady, models.StatusError); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("process", "conflict").Inc()
		return err
	}

	// Unchanged text keeps its chunks; only the index needs rebuilding when
	// the embedding model moved.
	if book.ContentHash == hash && book.ChunkCount > 0 {
		if err := p.finishProcess(ctx, bookID, hash, book.ChunkCount); err != nil {
			return err
		}
		metrics.PipelineRunsTotal.WithLabelValues("process", "noop").Inc()
		log.Info("chunks reused, text unchanged", zap.Int("chunk_count", book.ChunkCount))
		return nil
	}

	chapters := p.extractor.DetectChapters(book.TextContent)
	chunks, err := p.chunker.Chunk(book.TextContent, chapters)
	if err != nil {
		p.markError(ctx, bookID, err)
		metrics.PipelineRunsTotal.WithLabelValues("process", "error").Inc()
		return err
	}

	rows := make([]models.BookChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = models.BookChunk{
			ID:           uuid.NewString(),
			BookID:       bookID,
			ChunkIndex:   c.Index,
			Content:      c.Content,
			StartOffset:  c.StartOffset,
			EndOffset:    c.EndOffset,
			ChapterTitle: c.ChapterTitle,
			ChapterNum:   c.ChapterNumber,
			TokenCount:   c.TokenCount,
			ContentHash:  c.ContentHash,
			Keywords:     datatypes.NewJSONSlice(c.Keywords),
		}
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", bookID).Delete(&models.BookChunk{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		wrapped := fmt.Errorf("persist chunks: %w", err)
		p.markError(ctx, bookID, wrapped)
		metrics.PipelineRunsTotal.WithLabelValues("process", "error").Inc()
		return wrapped
	}

	if err := p.finishProcess(ctx, bookID, hash, len(rows)); err != nil {
		return err
	}

	metrics.PipelineRunsTotal.WithLabelValues("process", "ok").Inc()
	metrics.PipelineStageDuration.WithLabelValues("process").Observe(time.Since(start).Seconds())
	metrics.ChunksPerDocument.Observe(float64(len(rows)))
	log.Info("book processed",
		zap.Int("chunk_count", len(rows)),
		zap.Int("chapter_count", len(chapters)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// finishProcess records the chunking outcome and lands in extracted. The
// previous index stays queryable but the book is no longer ready until the
// embedding stage republishes it.
func (p *Processor) finishProcess(ctx context.Context, bookID, hash string, chunkCount int) error {
	err := p.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ?", bookID).
		Updates(map[string]any{
			"processing_status": models.StatusExtracted,
			"processing_error":  "",
			"content_hash":      hash,
			"chunk_count":       chunkCount,
			"is_embedded":       false,
		}).Error
	if err != nil {
		return fmt.Errorf("record processing outcome: %w", err)
	}
	return nil
}

func (p *Processor) index(ctx context.Context, bookID string) error {
	start := time.Now()
	log := logger.WithContext(ctx).With(zap.String("book_id", bookID))

	book, err := p.loadBook(ctx, bookID)
	if err != nil {
		return err
	}

	switch book.ProcessingStatus {
	case models.StatusPending, models.StatusExtracting:
		return fmt.Errorf("%w: book %s has no chunks yet, run processing first", ErrValidation, bookID)
	}

	if book.ProcessingStatus == models.StatusReady &&
		book.IsEmbedded &&
		book.EmbeddingModel == p.provider.Model() {
		metrics.PipelineRunsTotal.WithLabelValues("index", "noop").Inc()
		log.Info("indexing skipped, index up to date")
		return nil
	}

	if err := p.transition(ctx, bookID, book.ProcessingStatus, models.StatusEmbedding,
		models.StatusExtracted, models.StatusReady, models.StatusError); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("index", "conflict").Inc()
		return err
	}

	var chunks []models.BookChunk
	err = p.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		wrapped := fmt.Errorf("load chunks: %w", err)
		p.markError(ctx, bookID, wrapped)
		return wrapped
	}
	if len(chunks) == 0 {
		wrapped := fmt.Errorf("%w: book %s has no chunks", ErrEmptyInput, bookID)
		p.markError(ctx, bookID, wrapped)
		metrics.PipelineRunsTotal.WithLabelValues("index", "error").Inc()
		return wrapped
	}

	entries := make([]IndexEntry, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += embedBatchSize {
		batchEnd := batchStart + embedBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := p.provider.EmbedBatch(ctx, texts)
		if err != nil {
			wrapped := fmt.Errorf("embed chunks %d-%d: %w", batchStart, batchEnd, err)
			p.markError(ctx, bookID, wrapped)
			metrics.PipelineRunsTotal.WithLabelValues("index", "error").Inc()
			return wrapped
		}
		for i, c := range batch {
			entries = append(entries, IndexEntry{
				ChunkID:      c.ID,
				ChunkIndex:   c.ChunkIndex,
				Content:      c.Content,
				ChapterTitle: c.ChapterTitle,
				Embedding:    vectors[i],
			})
		}
	}

	if err := p.store.Upsert(ctx, bookID, p.provider.Model(), entries); err != nil {
		wrapped := fmt.Errorf("publish vector index: %w", err)
		p.markError(ctx, bookID, wrapped)
		metrics.PipelineRunsTotal.WithLabelValues("index", "error").Inc()
		return wrapped
	}

	err = p.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ?", bookID).
		Updates(map[string]any{
			"processing_status": models.StatusReady,
			"processing_error":  "",
			"embedding_model":   p.provider.Model(),
			"is_embedded":       true,
		}).Error
	if err != nil {
		return fmt.Errorf("record indexing outcome: %w", err)
	}

	metrics.PipelineRunsTotal.WithLabelValues("index", "ok").Inc()
	metrics.PipelineStageDuration.WithLabelValues("index").Observe(time.Since(start).Seconds())
	log.Info("book indexed",
		zap.Int("entries", len(entries)),
		zap.String("model", p.provider.Model()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (p *Processor) loadBook(ctx context.Context, bookID string) (*models.Book, error) {
	var book models.Book
	err := p.db.WithContext(ctx).First(&book, "id = ?", bookID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	return &book, nil
}

// transition moves the book from its observed status to the target with an
// optimistic guard: if another writer changed the status in between, zero
// rows match and the caller gets ErrConflict.
func (p *Processor) transition(ctx context.Context, bookID, from, to string, allowedFrom ...string) error {
	allowed := false
	for _, s := range allowedFrom {
		if from == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: book %s is %s", ErrConflict, bookID, from)
	}

	res := p.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND processing_status = ?", bookID, from).
		Update("processing_status", to)
	if res.Error != nil {
		return fmt.Errorf("transition to %s: %w", to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: book %s status changed concurrently", ErrConflict, bookID)
	}
	return nil
}

// markError parks the book in the error state with the failure recorded so a
// later re-run can pick the stage back up.
func (p *Processor) markError(ctx context.Context, bookID string, cause error) {
	err := p.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ?", bookID).
		Updates(map[string]any{
			"processing_status": models.StatusError,
			"processing_error":  cause.Error(),
		}).Error
	if err != nil {
		logger.WithContext(ctx).Error("failed to record pipeline error",
			zap.String("book_id", bookID), zap.Error(err))
	}
}
