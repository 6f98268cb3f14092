package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"go.uber.org/zap"
)

// DefaultExternalCallTimeout bounds every embedding and generation round trip.
const DefaultExternalCallTimeout = 30 * time.Second

// EmbeddingProvider turns text into a vector in the shared semantic space.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingKnowledgeRepository defines the repository interface for the backfill path
type EmbeddingKnowledgeRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.KnowledgeEntry, error)
	UpdateEmbedding(ctx context.Context, id int64, content string, embedding []float32) error
}

// ErrStaleContent is returned by UpdateEmbedding when the entry's content
// changed after the embedding was requested.
var ErrStaleContent = errors.New("knowledge entry content changed")

// EmbeddingService recomputes embeddings for entries queued by the backfill worker.
type EmbeddingService struct {
	provider EmbeddingProvider
	repo     EmbeddingKnowledgeRepository
	timeout  time.Duration
	metrics  Metrics
	logger   *zap.Logger
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(provider EmbeddingProvider, repo EmbeddingKnowledgeRepository, logger *zap.Logger) *EmbeddingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingService{
		provider: provider,
		repo:     repo,
		timeout:  DefaultExternalCallTimeout,
		metrics:  NopMetrics{},
		logger:   logger,
	}
}

// WithMetrics sets the metrics sink.
func (s *EmbeddingService) WithMetrics(m Metrics) *EmbeddingService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// WithTimeout overrides the embedding call timeout.
func (s *EmbeddingService) WithTimeout(d time.Duration) *EmbeddingService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// GenerateEmbedding computes and stores the embedding for the entry's current
// content. An entry that was deleted or re-ingested meanwhile is skipped.
func (s *EmbeddingService) GenerateEmbedding(ctx context.Context, entryID int64) error {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, domain.ErrKnowledgeNotFound) {
			s.logger.Info("embedding backfill skipped, entry deleted", zap.Int64("entry_id", entryID))
			return nil
		}
		return err
	}

	embedding, err := embedText(ctx, s.provider, s.timeout, s.metrics, buildEmbeddingText(entry.Title, entry.Content))
	if err != nil {
		return err
	}

	if err := s.repo.UpdateEmbedding(ctx, entry.ID, entry.Content, embedding); err != nil {
		if errors.Is(err, ErrStaleContent) {
			s.logger.Info("embedding backfill skipped, content changed", zap.Int64("entry_id", entryID))
			return nil
		}
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// embedText calls the provider under a timeout and maps every failure to
// ErrEmbeddingUnavailable.
func embedText(ctx context.Context, provider EmbeddingProvider, timeout time.Duration, metrics Metrics, text string) ([]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	embedding, err := provider.GenerateEmbedding(ctx, text)
	if err == nil && len(embedding) == 0 {
		err = errors.New("provider returned an empty embedding")
	}
	metrics.ExternalCall(ExternalEmbedding, err, time.Since(start))
	if err != nil {
		return nil, domain.ErrEmbeddingUnavailable.WithCause(err)
	}
	return embedding, nil
}

// buildEmbeddingText joins an entry's title and content into the text that is embedded.
func buildEmbeddingText(title, content string) string {
	var parts []string
	if t := strings.TrimSpace(title); t != "" {
		parts = append(parts, t)
	}
	if c := strings.TrimSpace(content); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, "\n\n")
}
