package llm

// Message represents a chat message
//
// Role: "system", "user", or "assistant"
// Content: Text content of the message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the reduced view of a completion the callers need.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionOptions provides optional parameters for a chat completion
//
// SystemPrompt: Prepended as a system message when set
// Model, MaxTokens, Temperature: Override the client defaults when non-zero
// JSONMode: Ask the model for a single JSON object
type ChatCompletionOptions struct {
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  *float64
	JSONMode     bool
}

// NewChatCompletionOptions creates default chat completion options
func NewChatCompletionOptions() *ChatCompletionOptions {
	return &ChatCompletionOptions{}
}

func (o *ChatCompletionOptions) WithSystemPrompt(prompt string) *ChatCompletionOptions {
	o.SystemPrompt = prompt
	return o
}

func (o *ChatCompletionOptions) WithModel(model string) *ChatCompletionOptions {
	o.Model = model
	return o
}

func (o *ChatCompletionOptions) WithMaxTokens(maxTokens int) *ChatCompletionOptions {
	o.MaxTokens = maxTokens
	return o
}

func (o *ChatCompletionOptions) WithTemperature(temperature float64) *ChatCompletionOptions {
	o.Temperature = &temperature
	return o
}

func (o *ChatCompletionOptions) WithJSONMode() *ChatCompletionOptions {
	o.JSONMode = true
	return o
}
