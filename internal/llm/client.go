package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// Client represents a generic LLM API client
// Thread-safe for concurrent use
//
// config: Configuration for the LLM API
// api: OpenAI compatible SDK client bound to config.APIURL
type Client struct {
	config *Config
	api    openai.Client
}

// NewClient creates a new LLM client with the given configuration
//
// Returns a new Client instance or an error if configuration is invalid
// Example:
//
//	client, err := llm.NewClient(&llm.Config{APIKey: key, APIURL: url, Model: "gpt-4o-mini", MaxTokens: 800, Timeout: 30})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewClient(config *Config, opts ...option.RequestOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.APIURL),
		option.WithRequestTimeout(time.Duration(config.Timeout) * time.Second),
		option.WithMaxRetries(2),
	}
	reqOpts = append(reqOpts, opts...)

	return &Client{
		config: config,
		api:    openai.NewClient(reqOpts...),
	}, nil
}

// ChatCompletion sends the messages and returns the first choice.
//
// Example:
//
//	messages := []llm.Message{
//		{Role: "user", Content: "Hello, how are you?"},
//	}
//	response, err := client.ChatCompletion(ctx, messages, nil)
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.getModel(opts)),
		Messages:    c.buildMessages(messages, opts),
		Temperature: openai.Float(c.getTemperature(opts)),
		MaxTokens:   openai.Int(int64(c.getMaxTokens(opts))),
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return &ChatResponse{
		ID:      completion.ID,
		Model:   completion.Model,
		Content: completion.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

// SimpleChat provides a simple interface for chat completion
//
// Example:
//
//	response, err := client.SimpleChat(ctx, "What is Go?", "You are a helpful assistant.")
func (c *Client) SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	opts := NewChatCompletionOptions()
	if systemPrompt != "" {
		opts = opts.WithSystemPrompt(systemPrompt)
	}
	return c.chatContent(ctx, prompt, opts)
}

// JSONChat is SimpleChat with the response constrained to a JSON object.
func (c *Client) JSONChat(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	opts := NewChatCompletionOptions().WithJSONMode()
	if systemPrompt != "" {
		opts = opts.WithSystemPrompt(systemPrompt)
	}
	return c.chatContent(ctx, prompt, opts)
}

func (c *Client) chatContent(ctx context.Context, prompt string, opts *ChatCompletionOptions) (string, error) {
	response, err := c.ChatCompletion(ctx, []Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// StatusCode returns the HTTP status of a failed API call, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRateLimited reports whether err is a 429 from the provider.
func IsRateLimited(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}

func (c *Client) buildMessages(messages []Message, opts *ChatCompletionOptions) []openai.ChatCompletionMessageParamUnion {
	ret := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if opts.SystemPrompt != "" {
		ret = append(ret, openai.SystemMessage(opts.SystemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			ret = append(ret, openai.SystemMessage(m.Content))
		case "assistant":
			ret = append(ret, openai.AssistantMessage(m.Content))
		default:
			ret = append(ret, openai.UserMessage(m.Content))
		}
	}
	return ret
}

func (c *Client) getModel(opts *ChatCompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.config.Model
}

func (c *Client) getMaxTokens(opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.config.MaxTokens
}

func (c *Client) getTemperature(opts *ChatCompletionOptions) float64 {
	if opts.Temperature != nil {
		return *opts.Temperature
	}
	return c.config.Temperature
}
