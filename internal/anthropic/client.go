// Package anthropic is a generation provider backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloo-solutions/zenithvault/internal/service"
)

const (
	DefaultModel     = "claude-haiku-4-5"
	DefaultMaxTokens = 1024
)

// ErrNoText is returned when a response carries no text block.
var ErrNoText = errors.New("anthropic: response contained no text")

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for testing against a fake server
	Model      string
	MaxTokens  int64
	MaxRetries int
}

// Client implements service.GenerationProvider.
type Client struct {
	client    anthropicsdk.Client
	model     string
	maxTokens int64
}

var _ service.GenerationProvider = (*Client)(nil)

// New creates a Client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: missing api key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Client{
		client:    anthropicsdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Generate sends the prompt as a single user turn and joins the text blocks
// of the reply.
func (c *Client) Generate(ctx context.Context, prompt service.Prompt) (string, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: prompt.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoText
	}
	return strings.Join(parts, "\n"), nil
}
