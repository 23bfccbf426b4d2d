// Package openai translates free-form source into Python through the chat
// completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/fx"

	"github.com/fatflowers/aspy/pkg/config"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = goopenai.GPT4o
)

const systemPrompt = "You are an expert code translator. Convert the input pseudocode/instruction into valid, " +
	"executable Python code. Do not use input() functions (hardcode values if needed). " +
	"Return ONLY the python code, no markdown backticks."

var ErrEmptyCompletion = errors.New("empty completion")

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

type Client struct {
	api     *goopenai.Client
	baseURL string
	model   string
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	cc := goopenai.DefaultConfig(opts.APIKey)
	cc.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	cc.HTTPClient = opts.HTTPClient
	return &Client{
		api:     goopenai.NewClientWithConfig(cc),
		baseURL: cc.BaseURL,
		model:   opts.Model,
	}
}

// ToPython returns the Python rendition of code written in language.
func (c *Client) ToPython(ctx context.Context, language, code string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: fmt.Sprintf("Input Code (%s):\n%s", language, code)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return StripFences(resp.Choices[0].Message.Content), nil
}

// IsUnauthorized reports whether err carries a 401 from the API, whether
// or not the body was a JSON error envelope.
func IsUnauthorized(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized
	}
	return false
}

// StripFences removes markdown code fences the model may add anyway.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```python", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// NewFromConfig returns nil when no API key is configured.
func NewFromConfig(cfg *config.Config) *Client {
	if cfg.Execution.OpenAIAPIKey == "" {
		return nil
	}
	return New(Options{
		APIKey:  cfg.Execution.OpenAIAPIKey,
		BaseURL: cfg.Execution.OpenAIBaseURL,
		Model:   cfg.Execution.Model,
	})
}

var Module = fx.Options(
	fx.Provide(NewFromConfig),
)
