package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	// PostgresEmbeddingDimensions is the width of the embedding column.
	PostgresEmbeddingDimensions = 1536
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	Store       string `envconfig:"STORE" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	GenerationProvider string `envconfig:"GENERATION_PROVIDER" default:"openai"`
	GenerationModel    string `envconfig:"GENERATION_MODEL"`
	AnthropicAPIKey    string `envconfig:"ANTHROPIC_API_KEY"`

	EmbeddingTimeout  time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`

	RetrievalLimit     int     `envconfig:"RETRIEVAL_LIMIT" default:"5"`
	RetrievalThreshold float64 `envconfig:"RETRIEVAL_THRESHOLD" default:"0.7"`
	IngestConcurrency  int     `envconfig:"INGEST_CONCURRENCY" default:"4"`

	RedisURL          string        `envconfig:"REDIS_URL"`
	EmbeddingCacheTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"24h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"zenith-imports"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN         string `envconfig:"SENTRY_DSN"`
	SentryEnvironment string `envconfig:"SENTRY_ENVIRONMENT" default:"development"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	BackfillInterval time.Duration `envconfig:"BACKFILL_INTERVAL" default:"30s"`

	// Bootstrap: create an initial organization and/or admin API key on startup
	InitOrgName string `envconfig:"INIT_ORG_NAME"`
	InitAPIKey  string `envconfig:"INIT_API_KEY"`
}

// Load reads a .env file when present, then ZENITH_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("ZENITH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.GenerationProvider = strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects inconsistent settings. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("ZENITH_DATABASE_URL is required when ZENITH_STORE=postgres"))
		}
		if c.EmbeddingDimensions != PostgresEmbeddingDimensions {
			errs = append(errs, fmt.Errorf("ZENITH_EMBEDDING_DIMENSIONS must be %d with the postgres store", PostgresEmbeddingDimensions))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("ZENITH_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}

	switch c.GenerationProvider {
	case ProviderOpenAI:
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ZENITH_ANTHROPIC_API_KEY is required when ZENITH_GENERATION_PROVIDER=anthropic"))
		}
	default:
		errs = append(errs, fmt.Errorf("ZENITH_GENERATION_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.GenerationProvider))
	}

	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("ZENITH_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.RetrievalLimit <= 0 {
		errs = append(errs, errors.New("ZENITH_RETRIEVAL_LIMIT must be positive"))
	}
	if c.RetrievalThreshold < 0 || c.RetrievalThreshold >= 1 {
		errs = append(errs, errors.New("ZENITH_RETRIEVAL_THRESHOLD must be in [0, 1)"))
	}
	if c.IngestConcurrency <= 0 {
		errs = append(errs, errors.New("ZENITH_INGEST_CONCURRENCY must be positive"))
	}
	if c.EmbeddingTimeout <= 0 || c.GenerationTimeout <= 0 {
		errs = append(errs, errors.New("provider timeouts must be positive"))
	}
	if c.BackfillInterval <= 0 {
		errs = append(errs, errors.New("ZENITH_BACKFILL_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) UsesPostgres() bool {
	return c.Store == StorePostgres
}
