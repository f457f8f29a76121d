package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chaptr/internal/models"
)

func newTestProcessor(t *testing.T) (*Processor, *fakeEmbedder, *MemoryVectorStore, func() *models.Book) {
	t.Helper()
	db := setupTestDB(t)
	embedder := newFakeEmbedder()
	store := NewMemoryVectorStore()
	processor := NewProcessor(db, NewChunker(100, 150, 20), embedder, store, fakeExtractor{})

	text := strings.TrimSpace(strings.Repeat("The captain kept the treasure map hidden below deck. ", 30))
	book := createTestBook(t, db, text)

	reload := func() *models.Book {
		var b models.Book
		require.NoError(t, db.First(&b, "id = ?", book.ID).Error)
		return &b
	}
	return processor, embedder, store, reload
}

func TestProcessor_FullRun(t *testing.T) {
	ctx := context.Background()
	processor, embedder, store, reload := newTestProcessor(t)

	require.NoError(t, processor.Process(ctx, "book-1"))
	book := reload()
	require.Equal(t, models.StatusExtracted, book.ProcessingStatus)
	require.Greater(t, book.ChunkCount, 1)
	require.NotEmpty(t, book.ContentHash)
	require.False(t, book.IsEmbedded)

	require.NoError(t, processor.Index(ctx, "book-1"))
	book = reload()
	require.Equal(t, models.StatusReady, book.ProcessingStatus)
	require.True(t, book.IsEmbedded)
	require.Equal(t, embedder.Model(), book.EmbeddingModel)

	count, err := store.Count(ctx, "book-1")
	require.NoError(t, err)
	require.Equal(t, book.ChunkCount, count)

	version, err := store.ModelVersion(ctx, "book-1")
	require.NoError(t, err)
	require.Equal(t, embedder.Model(), version)
}

func TestProcessor_RerunUnchangedIsNoop(t *testing.T) {
	ctx := context.Background()
	processor, embedder, _, reload := newTestProcessor(t)

	require.NoError(t, processor.Run(ctx, "book-1"))
	callsAfterFirst := embedder.calls
	firstHash := reload().ContentHash

	require.NoError(t, processor.Run(ctx, "book-1"))
	book := reload()
	require.Equal(t, models.StatusReady, book.ProcessingStatus)
	require.Equal(t, firstHash, book.ContentHash)
	require.Equal(t, callsAfterFirst, embedder.calls, "unchanged book must not re-embed")
}

func TestProcessor_ModelChangeReembedsWithoutRechunking(t *testing.T) {
	ctx := context.Background()
	processor, embedder, store, reload := newTestProcessor(t)

	require.NoError(t, processor.Run(ctx, "book-1"))
	firstChunkCount := reload().ChunkCount

	embedder.model = "fake-embed-v2"

	require.NoError(t, processor.Run(ctx, "book-1"))
	book := reload()
	require.Equal(t, models.StatusReady, book.ProcessingStatus)
	require.Equal(t, firstChunkCount, book.ChunkCount)
	require.Equal(t, "fake-embed-v2", book.EmbeddingModel)

	version, err := store.ModelVersion(ctx, "book-1")
	require.NoError(t, err)
	require.Equal(t, "fake-embed-v2", version)
}

func TestProcessor_ConcurrentRunsExcludeEachOther(t *testing.T) {
	ctx := context.Background()
	processor, _, _, reload := newTestProcessor(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = processor.Run(ctx, "book-1")
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrConflict)
		}
	}
	require.GreaterOrEqual(t, succeeded, 1)
	require.Equal(t, models.StatusReady, reload().ProcessingStatus)
}

func TestProcessor_SecondTriggerFailsFastWhileRunning(t *testing.T) {
	ctx := context.Background()
	processor, _, _, _ := newTestProcessor(t)

	// Simulate an in-flight run by holding the book's single-flight lock.
	lock := processor.lockFor("book-1")
	lock.Lock()
	defer lock.Unlock()

	require.ErrorIs(t, processor.Process(ctx, "book-1"), ErrConflict)
	require.ErrorIs(t, processor.Index(ctx, "book-1"), ErrConflict)
	require.ErrorIs(t, processor.Run(ctx, "book-1"), ErrConflict)
}

func TestProcessor_IndexBeforeProcessRejected(t *testing.T) {
	ctx := context.Background()
	processor, _, _, reload := newTestProcessor(t)

	err := processor.Index(ctx, "book-1")
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, models.StatusPending, reload().ProcessingStatus)
}

func TestProcessor_EmbeddingFailureParksInErrorState(t *testing.T) {
	ctx := context.Background()
	processor, embedder, _, reload := newTestProcessor(t)

	require.NoError(t, processor.Process(ctx, "book-1"))

	embedder.failWith = errors.New("upstream exploded")
	err := processor.Index(ctx, "book-1")
	require.Error(t, err)

	book := reload()
	require.Equal(t, models.StatusError, book.ProcessingStatus)
	require.Contains(t, book.ProcessingError, "upstream exploded")
	require.False(t, book.IsEmbedded)

	// A re-run after the failure clears recovers the book.
	embedder.failWith = nil
	require.NoError(t, processor.Index(ctx, "book-1"))
	require.Equal(t, models.StatusReady, reload().ProcessingStatus)
}

func TestProcessor_UnknownBook(t *testing.T) {
	processor, _, _, _ := newTestProcessor(t)

	require.ErrorIs(t, processor.Process(context.Background(), "nope"), ErrNotFound)
	require.ErrorIs(t, processor.Index(context.Background(), "nope"), ErrNotFound)
}

func TestProcessor_ContentChangeInvalidatesReadiness(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	embedder := newFakeEmbedder()
	store := NewMemoryVectorStore()
	processor := NewProcessor(db, NewChunker(100, 150, 20), embedder, store, fakeExtractor{})

	book := createTestBook(t, db, strings.Repeat("Original story about harbors and ships at anchor. ", 20))
	require.NoError(t, processor.Run(ctx, book.ID))

	newText := strings.Repeat("A completely rewritten story about deserts and caravans. ", 20)
	require.NoError(t, db.Model(&models.Book{}).Where("id = ?", book.ID).
		Update("text_content", newText).Error)

	require.NoError(t, processor.Process(ctx, book.ID))

	var reloaded models.Book
	require.NoError(t, db.First(&reloaded, "id = ?", book.ID).Error)
	require.Equal(t, models.StatusExtracted, reloaded.ProcessingStatus)
	require.False(t, reloaded.IsEmbedded)
	require.Equal(t, hashContent(newText), reloaded.ContentHash)
}
