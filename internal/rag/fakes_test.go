package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chaptr/internal/models"
	"chaptr/pkg/aiinterface"
)

// fakeEmbedder maps text to a deterministic bag-of-words vector so related
// texts score higher than unrelated ones under cosine similarity.
type fakeEmbedder struct {
	model    string
	failWith error
	calls    int
}

const fakeDim = 512

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{model: "fake-embed-v1"}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	vec := make([]float32, fakeDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?\"';:")))
		vec[h.Sum32()%fakeDim]++
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, len(texts))
	for i, txt := range texts {
		vec, err := f.Embed(ctx, txt)
		if err != nil {
			return nil, err
		}
		res[i] = vec
	}
	return res, nil
}

func (f *fakeEmbedder) Model() string  { return f.model }
func (f *fakeEmbedder) Dimension() int { return fakeDim }

// fakeExtractor handles plain text only; chapter detection looks for lines
// starting with "Chapter N".
type fakeExtractor struct{}

func (fakeExtractor) Supported(filename string) bool {
	return strings.HasSuffix(filename, ".txt")
}

func (fakeExtractor) Extract(filename string, data []byte) (*ExtractedText, error) {
	text := strings.TrimSpace(string(data))
	return &ExtractedText{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		PageCount: 1,
	}, nil
}

func (fakeExtractor) DetectChapters(text string) []ChapterBoundary {
	var boundaries []ChapterBoundary
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Chapter ") {
			var n int
			fmt.Sscanf(trimmed, "Chapter %d", &n)
			boundaries = append(boundaries, ChapterBoundary{
				Offset: offset,
				Title:  trimmed,
				Number: n,
			})
		}
		offset += len([]rune(line))
	}
	return boundaries
}

// fakeChatClient returns a canned answer and records requests.
type fakeChatClient struct {
	answer   string
	failWith error
	requests []*aiinterface.ChatCompletionRequest
}

func (f *fakeChatClient) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.failWith != nil {
		return nil, f.failWith
	}
	answer := f.answer
	if answer == "" {
		answer = "canned answer"
	}
	return &aiinterface.ChatCompletionResponse{
		ID:      "resp-1",
		Model:   "fake-chat-v1",
		Content: answer,
	}, nil
}

func (f *fakeChatClient) Name() string { return "fake" }
func (f *fakeChatClient) Close() error { return nil }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:chaptr_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Book{}, &models.BookChunk{}))
	return db
}

func createTestBook(t *testing.T, db *gorm.DB, text string) *models.Book {
	t.Helper()
	book := &models.Book{
		ID:               "book-1",
		Title:            "Test Book",
		Filename:         "test.txt",
		FileType:         "txt",
		FileSize:         int64(len(text)),
		TextContent:      text,
		WordCount:        len(strings.Fields(text)),
		PageCount:        1,
		ProcessingStatus: models.StatusPending,
	}
	require.NoError(t, db.Create(book).Error)
	return book
}
