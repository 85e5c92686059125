package llm

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/avelhart/chronicle/internal/config"
	"github.com/avelhart/chronicle/internal/errors"
)

// Usage reports the token consumption of a single completion as returned
// by the API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request describes one chat completion.
type Request struct {
	System      string  // system message, may be empty
	Prompt      string  // user message, required
	MaxTokens   int     // per-call completion-token cap; 0 leaves it to the API
	Temperature float64 // 0 leaves it to the API
}

// Client is the single operation the generator needs from the API.
type Client interface {
	Complete(ctx context.Context, req Request) (string, Usage, error)
}

// chatCompletions is the narrow slice of the SDK surface the client uses,
// kept as an interface so tests can substitute a mock.
type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	completions chatCompletions
	model       string
	temperature float64
}

// NewOpenAIClient builds a client for the configured endpoint. The base URL
// may point at any OpenAI-compatible service (SiliconFlow, DeepSeek, OpenAI).
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.APIEndpoint),
		option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		option.WithMaxRetries(0), // failures abort the run; the caller never retries
	)
	return &OpenAIClient{
		completions: &client.Chat.Completions,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Complete issues one chat completion and returns the generated text with
// its reported usage.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, Usage, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if temp := req.Temperature; temp > 0 {
		params.Temperature = openai.Float(temp)
	} else if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	completion, err := c.completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if stderrors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = apiErr.Error()
			}
			return "", Usage{}, errors.NewAPI(apiErr.StatusCode, msg)
		}
		return "", Usage{}, errors.NewAPI(0, err.Error())
	}

	usage := Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}

	if len(completion.Choices) == 0 {
		return "", usage, errors.NewAPI(0, "empty response: no choices returned")
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), usage, nil
}
