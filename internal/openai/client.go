// Package openai adapts the OpenAI API to the embedding and generation
// providers of the answer pipeline.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/zenithvault/internal/service"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingModel      = openai.SmallEmbedding3
	DefaultEmbeddingDimensions = 1536
	DefaultChatModel           = openai.GPT4oMini
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when no OpenAI API key is configured
	ErrNoAPIKey = errors.New("OpenAI API key not configured")
	// ErrNoChoices is returned when a completion carries no message
	ErrNoChoices = errors.New("completion returned no choices")
)

// API is the subset of the OpenAI API the client calls.
type API interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
	CreateChatCompletion(ctx context.Context, system, user string) (string, error)
}

// Config selects the endpoint and models. Zero values fall back to the defaults.
type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	Temperature         float32
}

// Client implements service.EmbeddingProvider and service.GenerationProvider.
type Client struct {
	api        API
	dimensions int
}

var (
	_ service.EmbeddingProvider  = (*Client)(nil)
	_ service.GenerationProvider = (*Client)(nil)
)

type adapter struct {
	client      *openai.Client
	embedModel  openai.EmbeddingModel
	dimensions  int
	chatModel   string
	temperature float32
}

func newAdapter(cfg Config) *adapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	embedModel := openai.EmbeddingModel(cfg.EmbeddingModel)
	if embedModel == "" {
		embedModel = DefaultEmbeddingModel
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}

	return &adapter{
		client:      openai.NewClientWithConfig(clientCfg),
		embedModel:  embedModel,
		dimensions:  cfg.EmbeddingDimensions,
		chatModel:   chatModel,
		temperature: cfg.Temperature,
	}
}

func (a *adapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.embedModel,
	}
	// ada-002 rejects the dimensions parameter.
	if a.embedModel != openai.AdaEmbeddingV2 {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}

func (a *adapter) CreateChatCompletion(ctx context.Context, system, user string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.chatModel,
		Messages:    messages,
		Temperature: a.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// NewClient creates a client with the default models.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        newAdapter(cfg),
		dimensions: cfg.EmbeddingDimensions,
	}
}

// GenerateEmbedding embeds text and checks the vector has the configured
// number of dimensions.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(embedding), c.dimensions)
	}

	return embedding, nil
}

// Generate runs a chat completion for the prompt.
func (c *Client) Generate(ctx context.Context, prompt service.Prompt) (string, error) {
	if strings.TrimSpace(prompt.User) == "" {
		return "", ErrEmptyText
	}

	text, err := c.api.CreateChatCompletion(ctx, prompt.System, prompt.User)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	return text, nil
}
