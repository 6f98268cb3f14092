package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/zenithvault/internal/anthropic"
	"github.com/cloo-solutions/zenithvault/internal/cache"
	"github.com/cloo-solutions/zenithvault/internal/config"
	"github.com/cloo-solutions/zenithvault/internal/openai"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"go.uber.org/zap"
)

var errOpenAIRequired = errors.New("ZENITH_OPENAI_API_KEY is required for embeddings")

func openAIClient(cfg *config.Config) (*openai.Client, error) {
	if !cfg.HasOpenAI() {
		return nil, errOpenAIRequired
	}
	oc := openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	}
	if cfg.GenerationProvider == config.ProviderOpenAI {
		oc.ChatModel = cfg.GenerationModel
	}
	return openai.NewClientWithConfig(oc), nil
}

// providers are the external services the pipeline calls.
type providers struct {
	// embedder embeds questions and goes through the cache when Redis is
	// configured. ingest embeds entry text uncached.
	embedder  service.EmbeddingProvider
	ingest    service.EmbeddingProvider
	generator service.GenerationProvider
	close     func()
}

func (p *providers) Close() {
	if p.close != nil {
		p.close()
	}
}

func buildProviders(ctx context.Context, cfg *config.Config, hits cache.HitRecorder, logger *zap.Logger) (*providers, error) {
	client, err := openAIClient(cfg)
	if err != nil {
		return nil, err
	}

	p := &providers{embedder: client, ingest: client, generator: client}

	if cfg.GenerationProvider == config.ProviderAnthropic {
		gen, err := anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.GenerationModel,
		})
		if err != nil {
			return nil, err
		}
		p.generator = gen
	}

	if cfg.HasRedis() {
		rc, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set up embedding cache: %w", err)
		}
		embeddingCache := cache.NewEmbeddingCache(client, cache.NewRedisBackend(rc), cfg.EmbeddingModel, cfg.EmbeddingCacheTTL, logger)
		if hits != nil {
			embeddingCache = embeddingCache.WithHitRecorder(hits)
		}
		p.embedder = embeddingCache
		p.close = func() { _ = rc.Close() }
		logger.Info("embedding cache enabled", zap.Duration("ttl", cfg.EmbeddingCacheTTL))
	}

	logger.Info("providers configured",
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.String("generation_provider", cfg.GenerationProvider),
	)
	return p, nil
}
