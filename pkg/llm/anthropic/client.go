package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/oceanbase/powermem/pkg/llm"
)

// Client is an Anthropic LLM client built on the official anthropic-sdk-go
// Messages API. It implements the llm.Provider interface.
type Client struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

// Config is the configuration for Anthropic LLM.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new Anthropic LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}, nil
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// GenerateWithMessages generates text using message history.
//
// The Anthropic API requires system messages to be passed separately from
// the message list; any "system" role messages are pulled out and sent as
// params.System instead.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var system string
	var converted []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}
		if msg.Role == "assistant" {
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  converted,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(options.Stop) > 0 {
		params.StopSequences = options.Stop
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: generate: %w", err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(tb.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic: generate: no text content returned")
	}

	return out.String(), nil
}

// Close closes the client connection.
//
// The SDK client holds no persistent resources; this method exists to
// satisfy llm.Provider.
func (c *Client) Close() error {
	return nil
}
