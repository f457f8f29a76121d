package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chaptr/internal/logger"
	"chaptr/internal/metrics"
	"chaptr/internal/models"
	"chaptr/pkg/aiinterface"
)

// ChatTurn is one prior message of the conversation, supplied by the caller.
type ChatTurn struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// ChatAnswer is a grounded reply with the passages it drew on.
type ChatAnswer struct {
	Answer  string         `json:"response"`
	Sources []SearchResult `json:"context_chunks"`
	Model   string         `json:"model"`
}

// ChatOptions tunes one chat turn.
type ChatOptions struct {
	TopK int
}

// ChatService answers questions about a single book, grounded on passages
// retrieved from its vector index.
type ChatService struct {
	books           *BookService
	retriever       *Retriever
	client          aiinterface.ChatClient
	maxHistoryTurns int
	relevanceFloor  float64
	timeout         time.Duration
}

// NewChatService wires a chat service. maxHistoryTurns caps how many prior
// messages are replayed (default 8); relevanceFloor drops passages scoring at
// or below it (default 0.5).
func NewChatService(books *BookService, retriever *Retriever, client aiinterface.ChatClient, maxHistoryTurns int, relevanceFloor float64, timeout time.Duration) *ChatService {
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = 8
	}
	if relevanceFloor <= 0 {
		relevanceFloor = 0.5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatService{
		books:           books,
		retriever:       retriever,
		client:          client,
		maxHistoryTurns: maxHistoryTurns,
		relevanceFloor:  relevanceFloor,
		timeout:         timeout,
	}
}

// Respond answers one question about the book. The book must be ready; a
// question with no sufficiently relevant passages is still answered, with the
// model told that nothing was retrieved.
func (s *ChatService) Respond(ctx context.Context, bookID, question string, history []ChatTurn, opts ChatOptions) (*ChatAnswer, error) {
	start := time.Now()
	log := logger.WithContext(ctx).With(zap.String("book_id", bookID))

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question must not be empty", ErrValidation)
	}

	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.ProcessingStatus != models.StatusReady {
		return nil, fmt.Errorf("%w: book %s is %s", ErrNotReady, bookID, book.ProcessingStatus)
	}

	retrievalStart := time.Now()
	results, err := s.retriever.Retrieve(ctx, bookID, question, opts.TopK)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RetrievalsTotal.WithLabelValues("ok").Inc()
	metrics.RetrievalDuration.Observe(time.Since(retrievalStart).Seconds())

	// Strictly above the floor: an orthogonal passage scores exactly 0.5 and
	// carries no signal.
	evidence := results[:0:0]
	for _, r := range results {
		if r.Similarity > s.relevanceFloor {
			evidence = append(evidence, r)
		}
	}

	messages := s.buildMessages(book, question, history, evidence)

	resp, err := s.complete(ctx, messages)
	if err != nil {
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	status := "ok"
	if len(evidence) == 0 {
		status = "no_context"
	}
	metrics.ChatTurnsTotal.WithLabelValues(status).Inc()
	metrics.ChatTurnDuration.Observe(time.Since(start).Seconds())
	log.Info("chat turn answered",
		zap.Int("sources", len(evidence)),
		zap.Duration("duration", time.Since(start)))

	return &ChatAnswer{
		Answer:  resp.Content,
		Sources: evidence,
		Model:   resp.Model,
	}, nil
}

// complete calls the generation model with a deadline and exactly one retry
// for retryable failures.
func (s *ChatService) complete(ctx context.Context, messages []aiinterface.Message) (*aiinterface.ChatCompletionResponse, error) {
	req := &aiinterface.ChatCompletionRequest{
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   1024,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := s.client.ChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var clientErr *aiinterface.ClientError
		if !errors.As(err, &clientErr) || !clientErr.IsRetryable() {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrGeneration, lastErr)
}

func (s *ChatService) buildMessages(book *models.Book, question string, history []ChatTurn, evidence []SearchResult) []aiinterface.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a reading companion for the book %q", book.Title)
	if book.Author != "" {
		fmt.Fprintf(&sb, " by %s", book.Author)
	}
	sb.WriteString(".\nAnswer the reader's questions using only the excerpts below. ")
	sb.WriteString("If the excerpts do not contain the answer, say so instead of inventing one.\n")

	if len(evidence) == 0 {
		sb.WriteString("\nNo relevant excerpts were retrieved for this question. ")
		sb.WriteString("Tell the reader you could not find a passage about this in the book.\n")
	} else {
		sb.WriteString("\nExcerpts from the book:\n")
		for i, r := range evidence {
			if r.ChapterTitle != "" {
				fmt.Fprintf(&sb, "\n[%d] (%s)\n%s\n", i+1, r.ChapterTitle, r.Content)
			} else {
				fmt.Fprintf(&sb, "\n[%d]\n%s\n", i+1, r.Content)
			}
		}
	}

	messages := []aiinterface.Message{{Role: "system", Content: sb.String()}}

	if len(history) > s.maxHistoryTurns {
		history = history[len(history)-s.maxHistoryTurns:]
	}
	for _, turn := range history {
		role := turn.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, aiinterface.Message{Role: role, Content: turn.Content})
	}

	return append(messages, aiinterface.Message{Role: "user", Content: question})
}
