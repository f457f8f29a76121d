package aiinterface

import "context"

// Message is one turn in a chat conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatCompletionRequest is a provider-neutral completion request.
type ChatCompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
}

// ChatCompletionResponse is a provider-neutral completion response.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatClient is the uniform interface over chat completion providers.
type ChatClient interface {
	ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
	Name() string
	Close() error
}

// ClientConfig configures a provider client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	OrgID      string
	MaxRetries int
	Timeout    int // seconds
}

// ErrorType classifies provider failures.
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeInvalidParams ErrorType = "invalid_params"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// ClientError is a classified provider failure.
type ClientError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a retry could plausibly succeed.
func (e *ClientError) IsRetryable() bool {
	return e.Type == ErrorTypeRateLimit || e.Type == ErrorTypeNetwork || e.Type == ErrorTypeServerError
}
