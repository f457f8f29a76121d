package books

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"chaptr/api/handlers/common"
	"chaptr/internal/rag"
)

// Handler serves the document endpoints: upload, lifecycle, pipeline
// triggers and chat.
type Handler struct {
	books     *rag.BookService
	processor *rag.Processor
	chat      *rag.ChatService
}

// NewHandler wires the document handler.
func NewHandler(books *rag.BookService, processor *rag.Processor, chat *rag.ChatService) *Handler {
	return &Handler{books: books, processor: processor, chat: chat}
}

// Upload accepts a multipart file upload and registers the book.
// POST /api/documents/upload
func (h *Handler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		common.ResponseError(c, fmt.Errorf("%w: missing file field", rag.ErrValidation))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		common.ResponseError(c, fmt.Errorf("%w: read upload: %v", rag.ErrValidation, err))
		return
	}

	book, err := h.books.Create(c.Request.Context(),
		header.Filename, c.PostForm("title"), c.PostForm("author"), data)
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseCreated(c, book)
}

// List returns all books, newest first.
// GET /api/documents
func (h *Handler) List(c *gin.Context) {
	books, err := h.books.List(c.Request.Context())
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseSuccess(c, books)
}

// Get returns one book with its pipeline state.
// GET /api/documents/:id
func (h *Handler) Get(c *gin.Context) {
	book, err := h.books.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseSuccess(c, book)
}

// Chunks returns the book's chunks in document order.
// GET /api/documents/:id/chunks
func (h *Handler) Chunks(c *gin.Context) {
	chunks, err := h.books.Chunks(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseSuccess(c, chunks)
}

// Delete removes the book, its chunks and its vector index.
// DELETE /api/documents/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.books.Delete(c.Request.Context(), c.Param("id")); err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseNoContent(c)
}

// Process runs the chunking stage. A run already in flight yields 409.
// POST /api/documents/:id/process
func (h *Handler) Process(c *gin.Context) {
	id := c.Param("id")
	if err := h.processor.Process(c.Request.Context(), id); err != nil {
		common.ResponseError(c, err)
		return
	}
	book, err := h.books.Get(c.Request.Context(), id)
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseAccepted(c, "processing complete", book)
}

// Index runs the embedding stage and publishes the vector index.
// POST /api/documents/:id/index
func (h *Handler) Index(c *gin.Context) {
	id := c.Param("id")
	if err := h.processor.Index(c.Request.Context(), id); err != nil {
		common.ResponseError(c, err)
		return
	}
	book, err := h.books.Get(c.Request.Context(), id)
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseAccepted(c, "indexing complete", book)
}

// ChatRequest is the chat endpoint's body.
type ChatRequest struct {
	Query   string         `json:"query" binding:"required"`
	History []rag.ChatTurn `json:"conversation_history"`
	TopK    int            `json:"top_k"`
}

// Chat answers a question about the book, grounded on retrieved passages.
// POST /api/documents/:id/chat
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseError(c, fmt.Errorf("%w: %v", rag.ErrValidation, err))
		return
	}
	if req.TopK < 0 {
		common.ResponseError(c, fmt.Errorf("%w: top_k must not be negative", rag.ErrValidation))
		return
	}

	answer, err := h.chat.Respond(c.Request.Context(),
		c.Param("id"), req.Query, req.History, rag.ChatOptions{TopK: req.TopK})
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseSuccess(c, answer)
}
