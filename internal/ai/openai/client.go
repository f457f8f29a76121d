package openai

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"chaptr/pkg/aiinterface"
)

// Client adapts the OpenAI chat completion API to aiinterface.ChatClient.
type Client struct {
	client     *openai.Client
	modelID    string
	maxRetries int
	timeout    time.Duration
}

// NewClient creates an OpenAI-backed chat client.
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: "OpenAI API key is required",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		modelID:    model,
		maxRetries: maxRetries,
		timeout:    timeout,
	}, nil
}

// ChatCompletion runs a non-streaming completion with retry on transient
// failures.
func (c *Client) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
	}

	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, wrapError(ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err = c.client.CreateChatCompletion(callCtx, openaiReq)
		cancel()
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			break
		}
	}
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "API returned no choices",
		}
	}

	return &aiinterface.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: aiinterface.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return "openai" }

// Close is a no-op; the OpenAI client holds no persistent connections.
func (c *Client) Close() error { return nil }

func isRetryableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout", "deadline exceeded", "connection", "rate limit",
		"429", "500", "502", "503", "504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func wrapError(err error) *aiinterface.ClientError {
	msg := strings.ToLower(err.Error())

	var errType aiinterface.ErrorType
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		errType = aiinterface.ErrorTypeAuth
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		errType = aiinterface.ErrorTypeRateLimit
	case strings.Contains(msg, "400"), strings.Contains(msg, "invalid"):
		errType = aiinterface.ErrorTypeInvalidParams
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		errType = aiinterface.ErrorTypeServerError
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"), strings.Contains(msg, "connection"):
		errType = aiinterface.ErrorTypeNetwork
	default:
		errType = aiinterface.ErrorTypeUnknown
	}

	return &aiinterface.ClientError{
		Type:    errType,
		Message: "OpenAI API error",
		Err:     err,
	}
}
