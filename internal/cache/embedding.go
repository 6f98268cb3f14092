// Package cache memoizes query embeddings in Redis so repeated questions do
// not round-trip to the embedding provider.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "zenith:embedding:"
	DefaultTTL = 24 * time.Hour
)

// ErrMiss is returned by a Backend when the key is absent.
var ErrMiss = errors.New("cache miss")

// Backend is the key-value store the cache writes to.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HitRecorder receives one call per lookup.
type HitRecorder interface {
	CacheLookup(hit bool)
}

// RedisBackend stores values in Redis.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return v, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// EmbeddingCache wraps an EmbeddingProvider. Cache errors are logged and
// fall through to the provider; they never fail a call.
type EmbeddingCache struct {
	provider service.EmbeddingProvider
	backend  Backend
	model    string
	ttl      time.Duration
	recorder HitRecorder
	logger   *zap.Logger
}

var _ service.EmbeddingProvider = (*EmbeddingCache)(nil)

// NewEmbeddingCache caches provider results under model. The model is part
// of the key so switching models never serves stale vectors.
func NewEmbeddingCache(provider service.EmbeddingProvider, backend Backend, model string, ttl time.Duration, logger *zap.Logger) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingCache{
		provider: provider,
		backend:  backend,
		model:    model,
		ttl:      ttl,
		logger:   logger,
	}
}

// WithHitRecorder sets the lookup observer.
func (c *EmbeddingCache) WithHitRecorder(r HitRecorder) *EmbeddingCache {
	c.recorder = r
	return c
}

func (c *EmbeddingCache) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		if v, decodeErr := decodeVector(raw); decodeErr == nil {
			c.record(true)
			return v, nil
		}
		c.logger.Warn("discarding corrupt cached embedding", zap.String("key", key))
	case !errors.Is(err, ErrMiss):
		c.logger.Warn("embedding cache read failed", zap.Error(err))
	}
	c.record(false)

	v, err := c.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.backend.Set(ctx, key, encodeVector(v), c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
	return v, nil
}

func (c *EmbeddingCache) record(hit bool) {
	if c.recorder != nil {
		c.recorder.CacheLookup(hit)
	}
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
